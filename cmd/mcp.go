package cmd

import (
	"github.com/spf13/cobra"

	"github.com/triagekit/triage/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve case tools to MCP clients over stdio",
	Long: `Starts an MCP server on stdio exposing list_cases, case_status,
case_report, advance_case, and answer_question. Point an MCP-capable
client at "triage mcp" to let it work cases directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		orch, store, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}
		return mcp.NewServer(store, orch).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
