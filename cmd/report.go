package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <case-id>",
	Short: "Render a case report as markdown, or HTML with --html",
	Args:  cobra.ExactArgs(1),
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

		store := cases.NewStore(database)
		c, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		events, err := store.Events(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		asHTML, _ := cmd.Flags().GetBool("html")

		var body []byte
		if asHTML {
			body, err = report.HTML(c, events)
			if err != nil {
				return err
			}
		} else {
			body = []byte(report.Markdown(c, events))
		}

		if out == "" {
			fmt.Print(string(body))
			return nil
		}
		if err := os.WriteFile(out, body, 0644); err != nil {
			return fmt.Errorf("writing report to %s: %w", out, err)
		}
		fmt.Printf("Report written to %s\n", out)
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("html", false, "render a standalone HTML page instead of markdown")
	reportCmd.Flags().String("out", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
