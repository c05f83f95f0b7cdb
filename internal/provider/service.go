package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/logging"
)

// Service walks the configured provider chain and returns the first usable
// suggestion. Per-provider failures are collected so an all-fail error can
// name every backend that was tried.
type Service struct {
	adapters *Registry
}

func NewService(registry *Registry) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{adapters: registry}
}

func (s *Service) Generate(ctx context.Context, cfg config.Config, req Request, preferredProvider string) (Suggestion, string, error) {
	order := providerOrder(cfg, preferredProvider)
	if len(order) == 0 {
		return Suggestion{}, "", fmt.Errorf("no providers configured")
	}

	// One run ID ties the fail-through attempts of a single generation
	// together in the log.
	runID := uuid.NewString()[:8]

	var issues []string
	for _, name := range order {
		providerCfg, ok := cfg.Providers[name]
		if !ok || disabled(providerCfg) {
			continue
		}
		suggestion, err := s.generateWith(ctx, name, providerCfg, req)
		if err != nil {
			logging.L().WithFields(log.Fields{
				"run":      runID,
				"provider": name,
				"error":    err.Error(),
			}).Debug("generation attempt failed")
			issues = append(issues, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		logging.L().WithFields(log.Fields{
			"run":      runID,
			"provider": name,
		}).Debug("generation served")
		return suggestion, name, nil
	}

	if len(issues) == 0 {
		return Suggestion{}, "", fmt.Errorf("no enabled provider was available")
	}
	return Suggestion{}, "", fmt.Errorf("all providers failed: %s", strings.Join(issues, " | "))
}

func (s *Service) generateWith(ctx context.Context, name string, providerCfg config.ProviderConfig, req Request) (Suggestion, error) {
	adapter, err := s.adapters.Build(name, providerCfg)
	if err != nil {
		return Suggestion{}, err
	}
	if checker, ok := adapter.(HealthChecker); ok {
		if err := checker.HealthCheck(); err != nil {
			return Suggestion{}, err
		}
	}

	fillRequestDefaults(&req, providerCfg)

	callCtx, cancel := timeoutContext(ctx, time.Duration(providerCfg.TimeoutSeconds)*time.Second)
	defer cancel()
	suggestion, err := adapter.Generate(callCtx, req)
	if err != nil {
		return Suggestion{}, err
	}
	return normalizeSuggestion(suggestion), nil
}

// disabled honors the tri-state Enabled flag: only an explicit false turns a
// provider off.
func disabled(providerCfg config.ProviderConfig) bool {
	return providerCfg.Enabled != nil && !*providerCfg.Enabled
}

// fillRequestDefaults backfills model and sampling limits from the provider
// config when the request leaves them unset.
func fillRequestDefaults(req *Request, providerCfg config.ProviderConfig) {
	req.Model = strings.TrimSpace(pickString(req.Model, providerCfg.Model))
	req.MaxTokens = pickInt(req.MaxTokens, providerCfg.MaxTokens)
	req.Temperature = pickFloat(req.Temperature, providerCfg.Temperature)
}

// providerOrder ranks providers: the explicit request first, then the
// configured default, then llamacpp, then everything else alphabetically.
// Unconfigured names and the "auto" placeholder are dropped.
func providerOrder(cfg config.Config, preferredProvider string) []string {
	names := cfg.ProviderNames()
	sort.Strings(names)

	candidates := make([]string, 0, len(names)+3)
	candidates = append(candidates, preferredProvider, cfg.Provider, "llamacpp")
	candidates = append(candidates, names...)

	seen := make(map[string]struct{}, len(candidates))
	order := make([]string, 0, len(cfg.Providers))
	for _, raw := range candidates {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || name == "auto" {
			continue
		}
		_, configured := cfg.Providers[name]
		_, dup := seen[name]
		if !configured || dup {
			continue
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}
	return order
}

// timeoutContext bounds one backend call; zero or negative means the
// provider did not configure one, not "wait forever".
func timeoutContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 2 * time.Minute
	}
	return context.WithTimeout(parent, d)
}
