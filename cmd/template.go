package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/triagekit/triage/internal/templates"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect and manage troubleshooting templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTemplates(func(store *templates.Store) error {
			all, _ := cmd.Flags().GetBool("all")
			list, err := store.List(cmd.Context(), !all)
			if err != nil {
				return err
			}
			for _, t := range list {
				line := fmt.Sprintf("%s  %-28s %s", t.ID, t.Name, t.Classification)
				if !t.Enabled {
					line += "  (disabled)"
				}
				if t.LearnedFrom != "" {
					line += fmt.Sprintf("  learned from case %s", t.LearnedFrom)
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template's questions and hypotheses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTemplates(func(store *templates.Store) error {
			t, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", t.Name, t.Classification)
			fmt.Printf("Keywords: %v\n", t.Keywords)
			if len(t.ErrorPatterns) > 0 {
				fmt.Printf("Error patterns: %v\n", t.ErrorPatterns)
			}
			if len(t.Questions) > 0 {
				fmt.Println("Questions:")
				for _, q := range t.Questions {
					req := ""
					if q.Required {
						req = " (required)"
					}
					fmt.Printf("  - %s%s\n", q.Prompt, req)
				}
			}
			if len(t.InitialHypotheses) > 0 {
				fmt.Println("Initial hypotheses:")
				for _, h := range t.InitialHypotheses {
					fmt.Printf("  - %s\n", h)
				}
			}
			return nil
		})
	},
}

var templateDisableCmd = &cobra.Command{
	Use:   "disable <template-id>",
	Short: "Disable a template (templates are never deleted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTemplates(func(store *templates.Store) error {
			if err := store.Disable(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Template %s disabled\n", args[0])
			return nil
		})
	},
}

var templateExportCmd = &cobra.Command{
	Use:   "export [template-id]",
	Short: "Export one or all templates as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTemplates(func(store *templates.Store) error {
			var out interface{}
			if len(args) == 1 {
				t, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out = t
			} else {
				list, err := store.List(cmd.Context(), false)
				if err != nil {
					return err
				}
				out = list
			}
			data, err := yaml.Marshal(out)
			if err != nil {
				return fmt.Errorf("marshalling templates: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		})
	},
}

// withTemplates runs fn with a template store wired from config, defaults
// seeded.
func withTemplates(fn func(*templates.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := templates.NewStore(database)
	if err := store.EnsureDefaults(context.Background()); err != nil {
		return err
	}
	return fn(store)
}

func init() {
	templateListCmd.Flags().Bool("all", false, "include disabled templates")
	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateDisableCmd, templateExportCmd)
	rootCmd.AddCommand(templateCmd)
}
