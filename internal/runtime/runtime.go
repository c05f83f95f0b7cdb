// Package runtime owns the execution side of a suggestion: cleaning backend
// output into a runnable line, classifying its risk, and running it through
// the user's shell.
package runtime

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Risk levels, worst last.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var stdinIsInteractive = isStdinInteractive

// ExecutionPolicy carries the safety knobs that govern one execution.
type ExecutionPolicy struct {
	BlockHighRisk     bool
	AllowYoloHighRisk bool
}

// NormalizeCommand strips the decoration a model tends to wrap around a
// command (code fences, `$ `/`> ` prompt prefixes) and rejects input that
// cannot be a command line at all.
func NormalizeCommand(command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", fmt.Errorf("command cannot be empty")
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", fmt.Errorf("command contains invalid null byte")
	}

	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		trimmed = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	switch {
	case strings.HasPrefix(trimmed, "$ "):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "$ "))
	case strings.HasPrefix(trimmed, "> "):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "> "))
	}

	if trimmed == "" {
		return "", fmt.Errorf("command cannot be empty")
	}
	return trimmed, nil
}

// ApplyRiskPolicy resolves the effective mode and risk label for one
// execution. Pattern classification only ever raises the backend's risk
// hint. Yolo never runs a high-risk command unconfirmed unless the policy
// explicitly allows it.
func ApplyRiskPolicy(policy ExecutionPolicy, mode, command, riskHint string) (string, string) {
	effectiveMode := strings.ToLower(strings.TrimSpace(mode))
	if effectiveMode == "" {
		effectiveMode = "confirm"
	}

	risk := normalizeRiskHint(riskHint)
	dangerous := HighRisk(command) || Destructive(command)
	switch {
	case dangerous && policy.BlockHighRisk:
		risk = RiskHigh
	case dangerous && risk == RiskLow:
		risk = RiskMedium
	case Mutating(command) && risk == RiskLow:
		risk = RiskMedium
	}

	if effectiveMode == "yolo" && risk == RiskHigh && !policy.AllowYoloHighRisk {
		effectiveMode = "confirm"
	}
	return effectiveMode, risk
}

// ShouldExecute applies the execution mode once risk has been resolved.
// Confirm mode without --yes prompts on the terminal; a non-interactive
// stdin refuses rather than silently running.
func ShouldExecute(mode string, yes bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "yolo":
		return true, nil
	case "confirm", "":
		if yes {
			return true, nil
		}
		if !stdinIsInteractive() {
			return false, fmt.Errorf("confirm mode requires an interactive terminal; rerun with --yes")
		}
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Run this command? [y/N]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		trimmed := strings.ToLower(strings.TrimSpace(line))
		return trimmed == "y" || trimmed == "yes", nil
	default:
		return false, fmt.Errorf("unknown mode: %s", mode)
	}
}

// RunCommand executes one command line through the user's shell so aliases
// and login-profile PATH entries resolve the way they do at a prompt.
func RunCommand(command string) error {
	shell, args := shellCommandInvocation(command)
	cmd := exec.Command(shell, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

func shellCommandInvocation(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		comspec := strings.TrimSpace(os.Getenv("COMSPEC"))
		if comspec == "" {
			comspec = "cmd"
		}
		return comspec, []string{"/C", command}
	}

	shell := strings.TrimSpace(os.Getenv("SHELL"))
	if shell != "" {
		if filepath.IsAbs(shell) {
			if _, err := os.Stat(shell); err == nil {
				return shell, []string{"-lc", command}
			}
		} else if resolved, err := exec.LookPath(shell); err == nil {
			return resolved, []string{"-lc", command}
		}
	}
	return "sh", []string{"-lc", command}
}

// HighRisk reports whether a command matches a pattern that can destroy data
// or take the machine down.
func HighRisk(command string) bool {
	low := strings.ToLower(strings.TrimSpace(command))
	patterns := []string{
		"rm -rf",
		"mkfs",
		"dd if=",
		"fdisk",
		"shutdown",
		"reboot",
		"userdel",
		"chmod 777 /",
		"> /dev/",
	}
	for _, pattern := range patterns {
		if strings.Contains(low, pattern) {
			return true
		}
	}
	return false
}

// Destructive reports whether a command removes files, branches, databases,
// or infrastructure even when it is not outright high risk.
func Destructive(command string) bool {
	low := strings.ToLower(strings.TrimSpace(command))
	patterns := []string{
		"rm ",
		"rmdir ",
		"git clean ",
		"git reset --hard",
		"git checkout --",
		"git worktree remove",
		"dropdb ",
		"kubectl delete ",
		"terraform destroy",
		"docker system prune",
	}
	for _, pattern := range patterns {
		if strings.Contains(low, pattern) {
			return true
		}
	}
	return false
}

// Mutating reports whether a command changes state at all, as opposed to
// only reading it. Used to raise the risk label from low to medium.
func Mutating(command string) bool {
	low := strings.ToLower(strings.TrimSpace(command))
	if low == "" {
		return false
	}
	if strings.Contains(low, ">>") || strings.Contains(low, ">|") || strings.Contains(low, " > ") {
		return true
	}
	if strings.HasPrefix(low, "tee ") || strings.Contains(low, "| tee ") {
		return true
	}
	prefixesAndFragments := []string{
		"mv ",
		"cp ",
		"touch ",
		"chmod ",
		"chown ",
		"mkdir ",
		"ln ",
		"truncate ",
		"sed -i",
		"perl -i",
		"git commit",
		"git push",
		"git reset",
		"git rebase",
		"git merge",
		"kubectl apply",
		"kubectl scale",
		"docker rm",
		"docker rmi",
		"systemctl start",
		"systemctl stop",
		"systemctl restart",
		"systemctl enable",
		"systemctl disable",
	}
	for _, pattern := range prefixesAndFragments {
		if strings.Contains(low, pattern) {
			return true
		}
	}
	installTools := []string{"apt", "apt-get", "yum", "dnf", "brew", "npm", "yarn", "pip", "pip3", "cargo", "gem"}
	fields := strings.Fields(low)
	for idx, field := range fields {
		for _, tool := range installTools {
			if field == tool && idx+1 < len(fields) {
				next := fields[idx+1]
				if next == "install" || next == "uninstall" || next == "remove" || next == "upgrade" {
					return true
				}
			}
		}
	}
	return Destructive(low)
}

func normalizeRiskHint(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case RiskHigh:
		return RiskHigh
	case RiskMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

func isStdinInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
