package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veliant/tribunal/internal/config"
	"github.com/veliant/tribunal/internal/engine"
	"github.com/veliant/tribunal/internal/report"
)

var (
	runQuestion string
	runConfig   string
	runOut      string
	runEndpoint string
	runModel    string
	runOffline  bool
	runVerbose  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliberate one question end to end",
	Long: `Run drives a single question through the full pipeline and writes the
run artifacts (trace.jsonl, state.json, decision.md) under the output
directory. The decision brief is also printed to stdout.

With --offline the worker endpoint is never contacted; a scripted worker
produces a deterministic clean run, which is useful for demos and for
verifying an installation.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(runQuestion)
		if question == "" {
			question = strings.TrimSpace(strings.Join(args, " "))
		}
		if question == "" {
			return fmt.Errorf("a question is required (use --question or pass it as arguments)")
		}

		cfg, sources, err := config.Load(runConfig)
		if err != nil {
			return err
		}
		if runOut != "" {
			cfg.Output.Dir = runOut
		}
		if runEndpoint != "" {
			cfg.Worker.Endpoints = runEndpoint
		}
		if runModel != "" {
			cfg.Worker.Model = runModel
		}
		if runOffline {
			cfg.Worker.Offline = true
		}
		if runVerbose {
			cfg.UI.Verbose = true
		}
		if cfg.UI.Verbose && len(sources) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "config loaded from %s\n", strings.Join(sources, ", "))
		}

		runID := engine.NewRunID()
		paths, err := report.NewLayout(cfg).Ensure(runID)
		if err != nil {
			return err
		}

		eng, err := engine.New(cfg,
			engine.WithRunID(runID),
			engine.WithTraceSink(engine.JSONLSink(paths.Trace)),
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintln(cmd.OutOrStdout(), renderRunHeader(runID, question, paths.Root))
		result, err := eng.Run(ctx, question)
		if err != nil {
			return err
		}
		if err := report.WriteAll(paths, result); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderDecision(result, paths))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runQuestion, "question", "", "Question to deliberate")
	runCmd.Flags().StringVar(&runConfig, "config", "", "Path to a config file (default: ./"+config.DefaultPath()+" if present)")
	runCmd.Flags().StringVar(&runOut, "out", "", "Base directory for run artifacts (overrides output.dir)")
	runCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "Worker endpoint override, comma separated, tried in order")
	runCmd.Flags().StringVar(&runModel, "model", "", "Worker model override")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "Use the scripted worker instead of a live endpoint")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print config provenance and extra detail")
	rootCmd.AddCommand(runCmd)
}
