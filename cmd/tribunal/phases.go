package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veliant/tribunal/internal/config"
	"github.com/veliant/tribunal/internal/engine"
)

var phasesConfig string

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Print the phase pipeline and its loop ceilings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Load(phasesConfig)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, phase := range engine.Phases() {
			suffix := ""
			if engine.Loops(phase) {
				ceiling := cfg.Engine.PersonaLoopCeiling
				if phase == engine.PhaseCaseFile {
					ceiling = cfg.Engine.CaseFileLoopCeiling
				}
				suffix = fmt.Sprintf("   (loops in place, up to %d attempts)", ceiling)
			}
			fmt.Fprintf(out, "%2d. %s%s\n", i+1, phase, suffix)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "audit_gate may route straight to terminal (block or request_clarification).")
		fmt.Fprintln(out, "Transitions are forward-only; exhausted loops degrade the run, they never abort it.")
		return nil
	},
}

func init() {
	phasesCmd.Flags().StringVar(&phasesConfig, "config", "", "Path to a config file for loop ceilings")
	rootCmd.AddCommand(phasesCmd)
}
