package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Guided troubleshooting cases with gated lifecycle and autonomous agent runs",
	Long: `Triage tracks troubleshooting investigations as cases moving through a
gated lifecycle: intake, normalize, classify, plan, execute, evaluate,
resolve. Templates seed the investigation plan, evidence extraction
proposes answers by confidence, and a bounded agent can work a case
autonomously with operator approval for risky actions.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".triage.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
