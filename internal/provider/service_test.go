package provider

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/wut-cli/wut/internal/config"
)

type stubAdapter struct {
	name    string
	fail    bool
	command string
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Type() string { return "stub" }

func (a *stubAdapter) Generate(_ context.Context, _ Request) (Suggestion, error) {
	if a.fail {
		return Suggestion{}, fmt.Errorf("stub generation refused")
	}
	return Suggestion{Command: a.command, Confidence: 0.9}, nil
}

func (a *stubAdapter) BuildInvocation(_ Request) ([]string, error) {
	return []string{a.name}, nil
}

func stubRegistry(failing map[string]bool) *Registry {
	registry := NewRegistry()
	registry.Register("stub", func(name string, _ config.ProviderConfig) (Adapter, error) {
		return &stubAdapter{name: name, fail: failing[name], command: "echo " + name}, nil
	})
	return registry
}

func stubConfig(names ...string) config.Config {
	cfg := config.Default()
	cfg.Providers = map[string]config.ProviderConfig{}
	for _, name := range names {
		cfg.Providers[name] = config.ProviderConfig{Type: "stub"}
	}
	return cfg
}

func TestProviderOrderPrefersRequestedThenConfigured(t *testing.T) {
	cfg := stubConfig("alpha", "beta", "llamacpp")
	cfg.Provider = "beta"

	order := providerOrder(cfg, "alpha")
	want := []string{"alpha", "beta", "llamacpp"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := 0; i < len(want); i++ {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestProviderOrderSkipsUnknownAndAutoNames(t *testing.T) {
	cfg := stubConfig("llamacpp")
	cfg.Provider = "auto"

	order := providerOrder(cfg, "ghost")
	if len(order) != 1 || order[0] != "llamacpp" {
		t.Fatalf("expected only llamacpp, got %v", order)
	}
}

func TestGenerateFallsThroughToNextProviderOnFailure(t *testing.T) {
	cfg := stubConfig("alpha", "beta")
	cfg.Provider = "alpha"
	service := NewService(stubRegistry(map[string]bool{"alpha": true}))

	suggestion, name, err := service.Generate(context.Background(), cfg, Request{Prompt: "list files"}, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if name != "beta" {
		t.Fatalf("expected beta to serve the request, got %q", name)
	}
	if suggestion.Command != "echo beta" {
		t.Fatalf("expected beta suggestion, got %q", suggestion.Command)
	}
}

func TestGenerateAggregatesIssuesWhenAllProvidersFail(t *testing.T) {
	cfg := stubConfig("alpha", "beta")
	cfg.Provider = "alpha"
	service := NewService(stubRegistry(map[string]bool{"alpha": true, "beta": true}))

	_, _, err := service.Generate(context.Background(), cfg, Request{Prompt: "list files"}, "")
	if err == nil {
		t.Fatalf("expected all-fail error")
	}
	if !strings.Contains(err.Error(), "all providers failed") {
		t.Fatalf("expected combined failure error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "alpha") || !strings.Contains(err.Error(), "beta") {
		t.Fatalf("expected both provider issues listed, got: %v", err)
	}
}

func TestGenerateSkipsDisabledProviders(t *testing.T) {
	cfg := stubConfig("alpha", "beta")
	cfg.Provider = "alpha"
	disabled := false
	alphaCfg := cfg.Providers["alpha"]
	alphaCfg.Enabled = &disabled
	cfg.Providers["alpha"] = alphaCfg

	service := NewService(stubRegistry(nil))

	_, name, err := service.Generate(context.Background(), cfg, Request{Prompt: "list files"}, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if name != "beta" {
		t.Fatalf("expected disabled alpha to be skipped, got %q", name)
	}
}

func TestGenerateErrorsWhenEveryProviderIsDisabled(t *testing.T) {
	cfg := stubConfig("alpha")
	cfg.Provider = "alpha"
	disabled := false
	alphaCfg := cfg.Providers["alpha"]
	alphaCfg.Enabled = &disabled
	cfg.Providers["alpha"] = alphaCfg

	service := NewService(stubRegistry(nil))

	_, _, err := service.Generate(context.Background(), cfg, Request{Prompt: "list files"}, "")
	if err == nil {
		t.Fatalf("expected error when every provider is disabled")
	}
	if !strings.Contains(err.Error(), "no enabled provider") {
		t.Fatalf("expected no-enabled-provider error, got: %v", err)
	}
}

func TestGenerateFillsModelAndLimitsFromProviderConfig(t *testing.T) {
	captured := Request{}
	registry := NewRegistry()
	registry.Register("stub", func(name string, _ config.ProviderConfig) (Adapter, error) {
		return &captureAdapter{name: name, captured: &captured}, nil
	})

	cfg := config.Default()
	cfg.Provider = "alpha"
	cfg.Providers = map[string]config.ProviderConfig{
		"alpha": {Type: "stub", Model: "tiny-model", MaxTokens: 48, Temperature: 0.3},
	}

	service := NewService(registry)
	_, _, err := service.Generate(context.Background(), cfg, Request{Prompt: "list files"}, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if captured.Model != "tiny-model" {
		t.Fatalf("expected provider model filled in, got %q", captured.Model)
	}
	if captured.MaxTokens != 48 {
		t.Fatalf("expected provider max tokens filled in, got %d", captured.MaxTokens)
	}
	if captured.Temperature != 0.3 {
		t.Fatalf("expected provider temperature filled in, got %.2f", captured.Temperature)
	}
}

type captureAdapter struct {
	name     string
	captured *Request
}

func (a *captureAdapter) Name() string { return a.name }

func (a *captureAdapter) Type() string { return "stub" }

func (a *captureAdapter) Generate(_ context.Context, req Request) (Suggestion, error) {
	*a.captured = req
	return Suggestion{Command: "echo ok"}, nil
}

func (a *captureAdapter) BuildInvocation(_ Request) ([]string, error) {
	return []string{a.name}, nil
}
