package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:   "tribunal",
	Short: "Adversarial deliberation engine for high-stakes questions",
	Long: `Tribunal takes one question and drives it through a fixed deliberation
pipeline: an audit gate, question decomposition, null hypotheses, a divergent
persona panel, synthesis, targeted research, per-hypothesis adjudication and a
final arbitration whose confidence is clamped to a computed robustness score.

Every run leaves three artifacts in its run directory: trace.jsonl (the
append-only event log), state.json (the full deliberation state) and
decision.md (the human-readable decision brief).`,
	SilenceUsage: true,
}

func main() {
	// .env is optional; deployments usually export the variables directly.
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
