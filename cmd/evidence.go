package cmd

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/evidence"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Attach and inspect case evidence",
}

var evidenceAddCmd = &cobra.Command{
	Use:   "add <case-id> <file-or-glob>...",
	Short: "Attach files as evidence; sensitive values are redacted before storage",
	Long: `Attaches one or more files to the case as evidence. Arguments are
doublestar globs, so "logs/**/*.log" works. Redaction (emails, IPs,
bearer tokens, API keys, card numbers) runs before anything is stored.`,
	Args: cobra.MinimumNArgs(2),
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

		orch, _, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}
		ingestor := evidence.NewIngestor(buildRedactor(cfg))
		tags, _ := cmd.Flags().GetStringSlice("tag")

		var paths []string
		for _, pattern := range args[1:] {
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return fmt.Errorf("bad glob %q: %w", pattern, err)
			}
			if len(matches) == 0 {
				// A literal path that exists but contains no glob magic.
				if _, statErr := os.Stat(pattern); statErr == nil {
					matches = []string{pattern}
				} else {
					fmt.Fprintf(os.Stderr, "note: %q matched nothing\n", pattern)
					continue
				}
			}
			paths = append(paths, matches...)
		}
		if len(paths) == 0 {
			return fmt.Errorf("no files matched")
		}

		added := 0
		for _, path := range paths {
			ev, redacted, err := ingestor.IngestFile(path, tags)
			if err != nil {
				fmt.Fprintf(os.Stderr, "note: skipping %s: %v\n", path, err)
				continue
			}
			if err := orch.AddEvidence(cmd.Context(), args[0], ev); err != nil {
				return err
			}
			added++
			suffix := ""
			if redacted {
				suffix = " (redacted)"
			}
			fmt.Printf("Added %s as %s%s\n", path, ev.ID, suffix)
		}
		fmt.Printf("Attached %d evidence record(s)\n", added)
		return nil
	},
}

var evidenceListCmd = &cobra.Command{
	Use:   "list <case-id>",
	Short: "List a case's evidence records",
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
		if len(c.Evidence) == 0 {
			fmt.Println("No evidence attached.")
			return nil
		}
		for _, ev := range c.Evidence {
			line := fmt.Sprintf("%s  %s  %s", ev.ID, ev.AddedAt.Format("2006-01-02 15:04"), ev.Source)
			if ev.Redacted {
				line += "  (redacted)"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	evidenceAddCmd.Flags().StringSlice("tag", nil, "tags to attach to each evidence record")
	evidenceCmd.AddCommand(evidenceAddCmd, evidenceListCmd)
	rootCmd.AddCommand(evidenceCmd)
}
