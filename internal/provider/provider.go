// Package provider turns rendered prompts into shell command suggestions
// through pluggable generation backends. The default backend drives a local
// llama.cpp binary; a generic command backend lets users wire their own.
package provider

import (
	"context"
	"fmt"

	"github.com/wut-cli/wut/internal/config"
)

// Stock reasons attached when a backend explains nothing itself. Callers can
// compare against these to tell a real explanation from filler.
const (
	ReasonModelCompletion = "generated by local model"
	ReasonFallback        = "provider suggestion"
)

type Request struct {
	Query       string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	Context     map[string]any
}

type Suggestion struct {
	Command           string   `json:"command"`
	Reason            string   `json:"reason"`
	Risk              string   `json:"risk"`
	Confidence        float64  `json:"confidence"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Alternatives      []string `json:"alternatives,omitempty"`
}

type Adapter interface {
	Name() string
	Type() string
	Generate(ctx context.Context, req Request) (Suggestion, error)
	BuildInvocation(req Request) ([]string, error)
}

type HealthChecker interface {
	HealthCheck() error
}

type Factory func(name string, cfg config.ProviderConfig) (Adapter, error)

// Registry maps provider type names to adapter factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory, 2)}
	r.Register("llamacpp", NewLlamaAdapter)
	r.Register("command", NewCommandAdapter)
	return r
}

func (r *Registry) Register(providerType string, factory Factory) {
	if r.factories == nil {
		r.factories = make(map[string]Factory, 1)
	}
	r.factories[providerType] = factory
}

// Build constructs the adapter for one configured provider. An empty type
// selects the generic command backend.
func (r *Registry) Build(name string, cfg config.ProviderConfig) (Adapter, error) {
	providerType := cfg.Type
	if providerType == "" {
		providerType = "command"
	}
	if factory, ok := r.factories[providerType]; ok {
		return factory(name, cfg)
	}
	return nil, fmt.Errorf("unsupported provider type: %s", providerType)
}

// Validate builds every enabled provider and runs its health check,
// returning one error per broken entry.
func (r *Registry) Validate(cfg config.Config) []error {
	var issues []error
	for name, providerCfg := range cfg.Providers {
		if providerCfg.Enabled != nil && !*providerCfg.Enabled {
			continue
		}
		if err := r.probe(name, providerCfg); err != nil {
			issues = append(issues, err)
		}
	}
	return issues
}

func (r *Registry) probe(name string, cfg config.ProviderConfig) error {
	adapter, err := r.Build(name, cfg)
	if err != nil {
		return fmt.Errorf("provider %q invalid: %w", name, err)
	}
	if checker, ok := adapter.(HealthChecker); ok {
		if err := checker.HealthCheck(); err != nil {
			return fmt.Errorf("provider %q health check failed: %w", name, err)
		}
	}
	return nil
}
