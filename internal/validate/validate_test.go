package validate

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFakeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake executable: %v", err)
	}
	return path
}

func TestCommandWithPathResolvesFromPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission semantics")
	}
	dir := t.TempDir()
	want := writeFakeExecutable(t, dir, "dockerish")

	res := CommandWithPath("dockerish ps -a", dir, nil)
	if !res.Valid {
		t.Fatalf("expected valid, got %+v", res)
	}
	if res.ResolvedPath != want {
		t.Fatalf("resolved path = %q, want %q", res.ResolvedPath, want)
	}
}

func TestCommandWithPathFirstMatchWins(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission semantics")
	}
	first := t.TempDir()
	second := t.TempDir()
	want := writeFakeExecutable(t, first, "tool")
	writeFakeExecutable(t, second, "tool")

	pathEnv := first + string(os.PathListSeparator) + second
	res := CommandWithPath("tool --version", pathEnv, nil)
	if res.ResolvedPath != want {
		t.Fatalf("expected first PATH dir to win, got %q", res.ResolvedPath)
	}
}

func TestCommandWithPathMissingExecutableInvalid(t *testing.T) {
	res := CommandWithPath("definitely-not-a-real-binary-7f3a9 --flag", t.TempDir(), nil)
	if res.Valid {
		t.Fatalf("expected invalid for absent executable, got %+v", res)
	}
	if res.Inconclusive {
		t.Fatalf("a scannable dir makes the verdict conclusive, got %+v", res)
	}
}

func TestCommandWithPathNonExecutableFileRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission semantics")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes"), []byte("text"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	res := CommandWithPath("notes", dir, nil)
	if res.Valid {
		t.Fatalf("expected non-executable file to be invalid, got %+v", res)
	}
}

func TestCommandBuiltinsValidWithoutResolution(t *testing.T) {
	for _, command := range []string{"cd /tmp", "echo hello", "export FOO=bar", "pwd"} {
		res := CommandWithPath(command, "", nil)
		if !res.Valid || !res.Builtin {
			t.Fatalf("expected builtin %q to be valid, got %+v", command, res)
		}
	}
}

func TestCommandDangerousNeverValid(t *testing.T) {
	dir := t.TempDir()
	if runtime.GOOS != "windows" {
		writeFakeExecutable(t, dir, "rm")
		writeFakeExecutable(t, dir, "dd")
	}
	for _, command := range []string{
		"rm -rf /",
		"rm -rf *",
		"dd if=/dev/zero of=/dev/sda",
		"mkfs.ext4 /dev/sda1",
		"cat x > /dev/sda",
	} {
		if res := CommandWithPath(command, dir, nil); res.Valid {
			t.Fatalf("expected %q to be rejected, got %+v", command, res)
		}
	}
}

func TestCommandWrapperTokensSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission semantics")
	}
	dir := t.TempDir()
	writeFakeExecutable(t, dir, "docker")

	res := CommandWithPath("sudo docker ps", dir, nil)
	if !res.Valid {
		t.Fatalf("expected sudo wrapper to validate docker, got %+v", res)
	}
	res = CommandWithPath("FOO=bar docker ps", dir, nil)
	if !res.Valid {
		t.Fatalf("expected env assignment to be skipped, got %+v", res)
	}
}

func TestCommandExtraDirsFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission semantics")
	}
	extra := t.TempDir()
	writeFakeExecutable(t, extra, "customtool")

	res := CommandWithPath("customtool run", t.TempDir(), []string{extra})
	if !res.Valid {
		t.Fatalf("expected extra dir fallback to resolve, got %+v", res)
	}
}

func TestCommandOverlongRejected(t *testing.T) {
	long := "echo "
	for len(long) <= maxCommandLength {
		long += "aaaaaaaaaa"
	}
	if res := CommandWithPath(long, "", nil); res.Valid {
		t.Fatalf("expected overlong command to be invalid")
	}
}

func TestLeadingToken(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"docker ps -a", "docker"},
		{"sudo systemctl restart nginx", "systemctl"},
		{"FOO=1 BAR=2 make test", "make"},
		{"env -i PATH=/bin ls", "ls"},
		{"time go test ./...", "go"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := LeadingToken(tc.input); got != tc.want {
			t.Fatalf("LeadingToken(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
