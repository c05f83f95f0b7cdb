package main

import (
	"testing"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/engine"
)

func TestDecideExecutionModePromotedCacheHitKeepsYolo(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceCache, Validated: true, Promoted: true, Risk: "low"}
	mode, risk := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "df -h")
	if mode != "yolo" {
		t.Fatalf("expected trusted cache hit to keep yolo, got %q", mode)
	}
	if risk != "low" {
		t.Fatalf("expected low risk, got %q", risk)
	}
}

func TestDecideExecutionModeConfigModeIsDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = "yolo"
	result := engine.Result{Source: engine.SourceCache, Validated: true, Risk: "low"}
	mode, _ := decideExecutionMode(cfg, options{}, result, "df -h")
	if mode != "yolo" {
		t.Fatalf("expected configured mode without a flag override, got %q", mode)
	}
}

func TestDecideExecutionModeGeneratedLowConfidenceForcesConfirm(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceGenerated, Validated: true, Confidence: 0.35}
	mode, _ := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "df -h")
	if mode != "confirm" {
		t.Fatalf("expected low-confidence generation to confirm, got %q", mode)
	}
}

func TestDecideExecutionModeGeneratedConfidentRunsInYolo(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceGenerated, Validated: true, Confidence: 0.92}
	mode, _ := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "df -h")
	if mode != "yolo" {
		t.Fatalf("expected confident validated generation to keep yolo, got %q", mode)
	}
}

func TestDecideExecutionModeBackendConfirmationFlagWins(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceGenerated, Validated: true, Confidence: 0.92, NeedsConfirmation: true}
	mode, _ := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "df -h")
	if mode != "confirm" {
		t.Fatalf("expected backend confirmation flag to force confirm, got %q", mode)
	}
}

func TestDecideExecutionModeUnverifiedCommandForcesConfirm(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceCache, Validated: false, Promoted: true, Risk: "low"}
	mode, _ := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "df -h")
	if mode != "confirm" {
		t.Fatalf("expected unverified command to force confirm, got %q", mode)
	}
}

func TestDecideExecutionModeYoloHighRiskDowngradesToConfirm(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceCache, Validated: true, Risk: "low"}
	mode, risk := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "rm -rf /tmp/scratch")
	if mode != "confirm" {
		t.Fatalf("expected high-risk yolo to downgrade to confirm, got %q", mode)
	}
	if risk != "high" {
		t.Fatalf("expected high risk label, got %q", risk)
	}
}

func TestDecideExecutionModeAllowYoloHighRiskBypassesDowngrade(t *testing.T) {
	cfg := config.Default()
	cfg.Safety.AllowYoloHighRisk = true
	result := engine.Result{Source: engine.SourceCache, Validated: true, Risk: "low"}
	mode, risk := decideExecutionMode(cfg, options{Mode: "yolo"}, result, "rm -rf /tmp/scratch")
	if mode != "yolo" {
		t.Fatalf("expected yolo to remain with allow_yolo_high_risk, got %q", mode)
	}
	if risk != "high" {
		t.Fatalf("expected high risk label to survive the bypass, got %q", risk)
	}
}

func TestDecideExecutionModeMutatingElevatesRisk(t *testing.T) {
	cfg := config.Default()
	result := engine.Result{Source: engine.SourceCache, Validated: true, Risk: "low"}
	mode, risk := decideExecutionMode(cfg, options{}, result, "git push origin HEAD")
	if mode != "confirm" {
		t.Fatalf("expected confirm mode, got %q", mode)
	}
	if risk != "medium" {
		t.Fatalf("expected mutating command to elevate to medium, got %q", risk)
	}
}

func TestConfidenceThreshold(t *testing.T) {
	cfg := config.Default()
	if got := confidenceThreshold(cfg); got != 0.60 {
		t.Fatalf("expected default threshold 0.60, got %.2f", got)
	}
	cfg.AI.MinConfidence = 0.85
	if got := confidenceThreshold(cfg); got != 0.85 {
		t.Fatalf("expected configured threshold, got %.2f", got)
	}
	cfg.AI.MinConfidence = 1.8
	if got := confidenceThreshold(cfg); got != 0.60 {
		t.Fatalf("expected out-of-range threshold to fall back, got %.2f", got)
	}
}

func TestClampConfidence(t *testing.T) {
	if got := clampConfidence(-0.2); got != 0 {
		t.Fatalf("expected negative confidence to clamp to 0, got %.2f", got)
	}
	if got := clampConfidence(0.44); got != 0.44 {
		t.Fatalf("expected in-range confidence unchanged, got %.2f", got)
	}
	if got := clampConfidence(3.0); got != 1 {
		t.Fatalf("expected oversized confidence to clamp to 1, got %.2f", got)
	}
}
