package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/engine"
	"github.com/wut-cli/wut/internal/router"
	wutrt "github.com/wut-cli/wut/internal/runtime"
	"github.com/wut-cli/wut/internal/ui"
)

type executionOutcome struct {
	Command  string
	Executed bool
	Success  bool
	Verdict  string
}

// decideExecutionMode resolves how a suggestion may run. Freshly generated
// commands fall back to confirm when the backend flagged them or scored below
// the confidence threshold; unverified commands never run unconfirmed. Cached
// answers earned their trust through outcomes, so only the risk policy
// applies to them.
func decideExecutionMode(cfg config.Config, opts options, result engine.Result, command string) (string, string) {
	mode := cfg.Mode
	if strings.TrimSpace(opts.Mode) != "" {
		mode = strings.TrimSpace(opts.Mode)
	}

	if result.Source == engine.SourceGenerated {
		if result.NeedsConfirmation {
			mode = "confirm"
		}
		if clampConfidence(result.Confidence) < confidenceThreshold(cfg) {
			mode = "confirm"
		}
	}
	if !result.Validated {
		mode = "confirm"
	}

	policy := wutrt.ExecutionPolicy{
		BlockHighRisk:     cfg.Safety.BlockHighRisk,
		AllowYoloHighRisk: cfg.Safety.AllowYoloHighRisk,
	}
	return wutrt.ApplyRiskPolicy(policy, mode, command, result.Risk)
}

func confidenceThreshold(cfg config.Config) float64 {
	if cfg.AI.MinConfidence > 0 && cfg.AI.MinConfidence <= 1 {
		return cfg.AI.MinConfidence
	}
	return 0.60
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func executeSuggested(eng *engine.Engine, cfg config.Config, opts options, result engine.Result, explanation string) executionOutcome {
	command, normalizeErr := wutrt.NormalizeCommand(result.Command)
	if normalizeErr != nil {
		payload := response{
			Intent:   string(router.IntentSuggest),
			Message:  fmt.Sprintf("command rejected: %v", normalizeErr),
			Command:  strings.TrimSpace(result.Command),
			Risk:     "high",
			Executed: false,
		}
		printResponse(payload, opts.JSON)
		return executionOutcome{Command: strings.TrimSpace(result.Command)}
	}
	result.Command = command

	mode, risk := decideExecutionMode(cfg, opts, result, command)
	result.Risk = risk

	if opts.JSON && isConfirmMode(mode) && !opts.Yes {
		printExecutePayload(result, explanation, executionOutcome{Command: command},
			"confirmation required; rerun with --yes or --mode yolo")
		return executionOutcome{Command: command}
	}

	if isConfirmMode(mode) && !opts.Yes && !opts.JSON {
		backend := effectiveUIBackend(cfg, opts)
		if canUseInteractiveUI(opts, backend) {
			approved, used, uiErr := ui.ConfirmExecution(backend, command, risk)
			if uiErr == nil && used {
				if !approved {
					printConfirmCancelled(command, risk)
					return executionOutcome{Command: command}
				}
				return runAndRecord(eng, cfg, opts, result, explanation)
			}
			if uiErr != nil {
				fmt.Fprintf(os.Stderr, "wut: ui confirmation failed (%v); falling back to plain prompt\n", uiErr)
			}
		}

		fmt.Println("Command to run:")
		fmt.Println(command)
	}

	shouldRun, err := wutrt.ShouldExecute(mode, opts.Yes)
	if err != nil {
		payload := response{Intent: string(router.IntentSuggest), Message: err.Error(), Command: command, Risk: risk}
		printResponse(payload, opts.JSON)
		return executionOutcome{Command: command}
	}
	if !shouldRun {
		if isConfirmMode(mode) && !opts.Yes && !opts.JSON {
			printConfirmCancelled(command, risk)
			return executionOutcome{Command: command}
		}
		payload := response{Intent: string(router.IntentSuggest), Message: "not executed", Command: command, Risk: risk}
		printResponse(payload, opts.JSON)
		return executionOutcome{Command: command}
	}
	return runAndRecord(eng, cfg, opts, result, explanation)
}

// runAndRecord executes the command and reports the outcome in the same
// process, so `wut --execute` learns even on machines without shell hooks.
func runAndRecord(eng *engine.Engine, cfg config.Config, opts options, result engine.Result, explanation string) executionOutcome {
	runErr := wutrt.RunCommand(result.Command)
	success := runErr == nil

	// Consume the pending marker first: a shell hook firing on the wrapping
	// `wut --execute ...` line must not double-count this outcome.
	_, _, _ = engine.TakePending(result.Command, eng.PendingTTL())

	verdict := ""
	entry, v, reportErr := eng.ReportOutcome(result.Fingerprint, success)
	if reportErr != nil {
		fmt.Fprintf(os.Stderr, "wut: could not record outcome: %v\n", reportErr)
	} else {
		verdict = v.String()
		result.Uses = entry.Uses
		result.SuccessRatio = entry.SuccessRatio()
		result.Promoted = entry.Promoted
		result.Validated = entry.Validated
	}

	outcome := executionOutcome{Command: result.Command, Executed: true, Success: success, Verdict: verdict}
	message := ""
	if runErr != nil {
		message = fmt.Sprintf("execution failed: %v", runErr)
	}

	if opts.JSON {
		printExecutePayload(result, explanation, outcome, message)
		return outcome
	}

	if message != "" {
		fmt.Println(message)
	}
	fmt.Printf("command: %s\n", result.Command)
	if result.Risk != "" {
		fmt.Printf("risk: %s\n", result.Risk)
	}
	if reportErr == nil {
		word := "failure"
		if success {
			word = "success"
		}
		fmt.Printf("recorded: %s (uses %d, success %.0f%%)\n", word, result.Uses, result.SuccessRatio*100)
		switch verdict {
		case "promote":
			fmt.Println("promoted: this answer now comes straight from the cache")
		case "demote":
			fmt.Println("demoted: this answer will be regenerated next time")
		}
	}
	return outcome
}

func printExecutePayload(result engine.Result, explanation string, outcome executionOutcome, message string) {
	payload := suggestPayload{
		Result:      result,
		Explanation: explanation,
		Executed:    outcome.Executed,
		Success:     outcome.Success,
		Verdict:     outcome.Verdict,
		Message:     message,
	}
	encoded, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Println(string(encoded))
}

func printConfirmCancelled(command string, risk string) {
	fmt.Println("Cancelled. Command not executed.")
	fmt.Printf("command: %s\n", command)
	if risk != "" {
		fmt.Printf("risk: %s\n", risk)
	}
}
