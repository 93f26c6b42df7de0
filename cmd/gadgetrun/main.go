// Package main provides the CLI entry point for gadgetrun, a provider-agnostic
// LLM agent runtime.
//
// gadgetrun drives the agent loop described in spec.md against Anthropic,
// OpenAI, Gemini, or Bedrock-hosted models, with gadgets loaded from an
// external JSON manifest so the core stays free of any specific gadget's
// business logic.
//
// # Basic usage
//
// Run a single task:
//
//	gadgetrun run --config gadgetrun.yaml --prompt "summarize this repo"
//
// Resume a prior session:
//
//	gadgetrun run --config gadgetrun.yaml --session-store sessions.db --resume sess_abc123 --prompt "continue"
//
// Inspect a recorded trace:
//
//	gadgetrun trace validate run.trace.jsonl
//	gadgetrun trace replay run.trace.jsonl --speed 4
//
// Check configuration and provider credentials:
//
//	gadgetrun doctor --config gadgetrun.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main for testability.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gadgetrun",
		Short: "gadgetrun - provider-agnostic LLM agent runtime",
		Long: `gadgetrun drives a single agent loop against Anthropic, OpenAI, Gemini, or
Bedrock, parsing gadget calls out of the model's text output and executing
them through an externally defined gadget contract.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildTraceCmd(),
		buildDoctorCmd(),
	)

	return rootCmd
}
