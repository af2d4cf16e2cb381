package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/extract"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Create and work troubleshooting cases",
}

var caseNewCmd = &cobra.Command{
	Use:   "new <problem description>",
	Short: "Open a new case in the intake state",
	Args:  cobra.MinimumNArgs(1),
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
		c, err := store.Create(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("Opened case %s\n", c.ID)
		fmt.Println("Next: attach evidence with `triage evidence add`, then `triage case analyze`.")
		return nil
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
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

		state, _ := cmd.Flags().GetString("state")
		classification, _ := cmd.Flags().GetString("classification")
		limit, _ := cmd.Flags().GetInt("limit")

		store := cases.NewStore(database)
		list, err := store.List(cmd.Context(), cases.ListFilter{
			State:          cases.State(state),
			Classification: classification,
			Limit:          limit,
		})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No cases. Open one with `triage case new`.")
			return nil
		}
		for _, c := range list {
			line := fmt.Sprintf("%s  [%s]", c.ID, c.State)
			if c.Classification != "" {
				line += fmt.Sprintf(" (%s)", c.Classification)
			}
			fmt.Printf("%s  %s\n", line, firstLine(c.Problem))
		}
		return nil
	},
}

var caseShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show a case's full status",
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

		fmt.Printf("Case %s\n", c.ID)
		fmt.Printf("  State:          %s\n", c.State)
		if c.Classification != "" {
			fmt.Printf("  Classification: %s\n", c.Classification)
		}
		fmt.Printf("  Problem:        %s\n", firstLine(c.Problem))
		if c.Scope != nil {
			confirmed := "draft"
			if c.Scope.Confirmed {
				confirmed = "confirmed"
			}
			fmt.Printf("  Scope:          v%d (%s) %s\n", c.Scope.Version, confirmed, c.Scope.Summary)
		}
		if len(c.Questions) > 0 {
			fmt.Println("  Questions:")
			for _, q := range c.Questions {
				status := string(q.Status)
				if q.Status == cases.QuestionAnswered {
					status = "answered: " + q.Answer
				}
				req := ""
				if q.Required {
					req = " (required)"
				}
				fmt.Printf("    %s  %s%s — %s\n", q.ID, q.Prompt, req, status)
			}
		}
		if len(c.Hypotheses) > 0 {
			fmt.Println("  Hypotheses:")
			for _, h := range c.Hypotheses {
				fmt.Printf("    %s  %s — %s\n", h.ID, h.Statement, h.Status)
			}
		}
		if len(c.Evidence) > 0 {
			fmt.Printf("  Evidence:       %d record(s)\n", len(c.Evidence))
		}

		if next, ok := cases.NextState(c); ok {
			if gateErr := cases.CanTransition(c, next); gateErr != nil {
				fmt.Printf("  Next:           %s (blocked: %v)\n", next, gateErr)
			} else {
				fmt.Printf("  Next:           %s (ready)\n", next)
			}
		} else {
			fmt.Println("  Next:           none (terminal for automatic progression)")
		}
		return nil
	},
}

var caseNextCmd = &cobra.Command{
	Use:   "next <case-id>",
	Short: "Advance the case; progression stops at the first unmet gate",
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

		orch, _, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}

		res, err := orch.Next(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		states := make([]string, len(res.Sequence))
		for i, s := range res.Sequence {
			states[i] = string(s)
		}
		fmt.Printf("Advanced %d state(s): %s\n", res.StatesAdvanced, strings.Join(states, " -> "))
		return nil
	},
}

var caseAnswerCmd = &cobra.Command{
	Use:   "answer <case-id> <question-id> [answer...]",
	Short: "Answer a diagnostic question, or skip it with a recorded constraint",
	Args:  cobra.MinimumNArgs(2),
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

		skip, _ := cmd.Flags().GetBool("skip")
		if skip {
			reason, _ := cmd.Flags().GetString("reason")
			desc, _ := cmd.Flags().GetString("description")
			if reason == "" {
				return fmt.Errorf("--skip requires --reason (not_applicable, no_access, or time_pressure)")
			}
			if err := orch.SkipQuestion(cmd.Context(), args[0], args[1], cases.ConstraintReason(reason), desc); err != nil {
				return err
			}
			fmt.Printf("Skipped %s with constraint %s\n", args[1], reason)
			return nil
		}

		if len(args) < 3 {
			return fmt.Errorf("an answer is required unless --skip is given")
		}
		if err := orch.AddAnswer(cmd.Context(), args[0], args[1], strings.Join(args[2:], " ")); err != nil {
			return err
		}
		fmt.Printf("Recorded answer to %s\n", args[1])
		return nil
	},
}

var caseAnalyzeCmd = &cobra.Command{
	Use:   "analyze <case-id>",
	Short: "Classify the case, seed its plan from the best template, and extract answers from evidence",
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

		orch, store, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}

		ranked, err := orch.Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(ranked) > 0 {
			fmt.Printf("Matched template %q (score %.2f)\n", ranked[0].Template.Name, ranked[0].Score)
			if verbose {
				for _, reason := range ranked[0].Reasons {
					fmt.Printf("  - %s\n", reason)
				}
			}
		} else {
			c, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("No template matched; classified as %s\n", c.Classification)
		}

		suggestions, err := orch.AutoExtractAnswers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(suggestions) == 0 {
			fmt.Println("No answers could be extracted from the evidence.")
			return nil
		}

		yes, _ := cmd.Flags().GetBool("yes")
		accepted := reviewSuggestions(suggestions, yes)
		applied, err := orch.ApplyAnswerSuggestions(cmd.Context(), args[0], accepted)
		if err != nil {
			return err
		}
		fmt.Printf("Applied %d extracted answer(s)\n", applied)
		return nil
	},
}

// reviewSuggestions auto-accepts high confidence extractions and asks the
// operator about medium and low ones. With yes set, everything is accepted.
func reviewSuggestions(suggestions []extract.Suggestion, yes bool) []extract.Suggestion {
	var accepted []extract.Suggestion
	for _, s := range suggestions {
		if yes || s.Confidence == extract.ConfidenceHigh {
			if s.Confidence == extract.ConfidenceHigh {
				fmt.Printf("Auto-applying (%s): %s = %q\n", s.Confidence, s.QuestionID, s.Answer)
			}
			accepted = append(accepted, s)
			continue
		}
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Apply %s confidence answer %s = %q", s.Confidence, s.QuestionID, s.Answer),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if err != promptui.ErrAbort {
				fmt.Fprintf(os.Stderr, "note: skipping suggestion: %v\n", err)
			}
			continue
		}
		accepted = append(accepted, s)
	}
	return accepted
}

var caseScopeCmd = &cobra.Command{
	Use:   "scope <case-id>",
	Short: "Generate a problem scope draft and confirm it",
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

		orch, _, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}

		scope, err := orch.GenerateProblemScope(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Scope draft (v%d):\n", scope.Version)
		fmt.Printf("  Summary:   %s\n", scope.Summary)
		fmt.Printf("  Impact:    %s\n", scope.Impact)
		if scope.Timeframe != "" {
			fmt.Printf("  Timeframe: %s\n", scope.Timeframe)
		}
		for _, comp := range scope.AffectedComponents {
			fmt.Printf("  Affected:  %s\n", comp)
		}
		for _, p := range scope.ErrorPatterns {
			fmt.Printf("  Pattern:   %s\n", p)
		}

		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			prompt := promptui.Prompt{Label: "Confirm this scope", IsConfirm: true}
			if _, err := prompt.Run(); err != nil {
				fmt.Println("Scope left unconfirmed.")
				return nil
			}
		}

		reason, _ := cmd.Flags().GetString("reason")
		if err := orch.ConfirmScope(cmd.Context(), args[0], *scope, reason); err != nil {
			return err
		}
		fmt.Println("Scope confirmed.")
		return nil
	},
}

var caseHypothesisCmd = &cobra.Command{
	Use:   "hypothesis <case-id> <verb>",
	Short: "Add or settle hypotheses",
	Long: `Add a hypothesis:    triage case hypothesis <case-id> add <statement>
Settle a hypothesis: triage case hypothesis <case-id> test <hypothesis-id> validated|disproven [--evidence e1,e2] [--notes ...]`,
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

		switch args[1] {
		case "add":
			if len(args) < 3 {
				return fmt.Errorf("a hypothesis statement is required")
			}
			id, err := orch.AddHypothesis(cmd.Context(), args[0], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			fmt.Printf("Added hypothesis %s\n", id)
			return nil
		case "test":
			if len(args) < 4 {
				return fmt.Errorf("usage: hypothesis <case-id> test <hypothesis-id> validated|disproven")
			}
			refs, _ := cmd.Flags().GetStringSlice("evidence")
			notes, _ := cmd.Flags().GetString("notes")
			if err := orch.TestHypothesis(cmd.Context(), args[0], args[2],
				cases.HypothesisStatus(args[3]), refs, notes); err != nil {
				return err
			}
			fmt.Printf("Hypothesis %s marked %s\n", args[2], args[3])
			return nil
		}
		return fmt.Errorf("unknown verb %q (want add or test)", args[1])
	},
}

var caseParkCmd = &cobra.Command{
	Use:   "park <case-id>",
	Short: "Park the case in pending_external until a person answers",
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

		orch, _, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}
		if err := orch.AdvanceTo(cmd.Context(), args[0], cases.StatePendingExternal); err != nil {
			return err
		}
		fmt.Println("Case parked. Answering any question returns it to its previous state.")
		return nil
	},
}

var caseResolveCmd = &cobra.Command{
	Use:   "resolve <case-id>",
	Short: "Score the matched template's effectiveness and optionally mark the case ready for solution",
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

		orch, _, _, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}

		res, err := orch.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if res != nil {
			fmt.Printf("Template effectiveness: %d/100\n", res.Score)
			if verbose {
				for _, line := range res.Breakdown {
					fmt.Printf("  - %s\n", line)
				}
			}
			if res.Learned != nil {
				fmt.Printf("Learned new template %q from this case\n", res.Learned.Name)
			}
		}

		deliver, _ := cmd.Flags().GetBool("deliver")
		if deliver {
			if err := orch.AdvanceTo(cmd.Context(), args[0], cases.StateReadyForSolution); err != nil {
				return err
			}
			fmt.Println("Case marked ready_for_solution.")
		}
		return nil
	},
}

var caseClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cases, optionally writing a JSON backup first",
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

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			prompt := promptui.Prompt{Label: "Delete ALL cases", IsConfirm: true}
			if _, err := prompt.Run(); err != nil {
				fmt.Println("Aborted.")
				return nil
			}
		}

		backup, _ := cmd.Flags().GetString("backup")
		store := cases.NewStore(database)
		n, err := store.DeleteAll(cmd.Context(), backup)
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Printf("Backed up to %s\n", backup)
		}
		fmt.Printf("Deleted %d case(s)\n", n)
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "…"
	}
	return s
}

func init() {
	caseListCmd.Flags().String("state", "", "filter by lifecycle state")
	caseListCmd.Flags().String("classification", "", "filter by classification")
	caseListCmd.Flags().Int("limit", 0, "maximum cases to list")

	caseAnswerCmd.Flags().Bool("skip", false, "skip the question instead of answering")
	caseAnswerCmd.Flags().String("reason", "", "constraint reason for --skip: not_applicable, no_access, time_pressure")
	caseAnswerCmd.Flags().String("description", "", "free-form constraint description for --skip")

	caseAnalyzeCmd.Flags().Bool("yes", false, "accept all extracted answers without prompting")

	caseScopeCmd.Flags().Bool("confirm", false, "confirm the scope without prompting")
	caseScopeCmd.Flags().String("reason", "", "reason when replacing a previously confirmed scope")

	caseHypothesisCmd.Flags().StringSlice("evidence", nil, "evidence ids backing the verdict")
	caseHypothesisCmd.Flags().String("notes", "", "notes on how the hypothesis was tested")

	caseResolveCmd.Flags().Bool("deliver", false, "mark the case ready_for_solution after scoring")

	caseClearCmd.Flags().Bool("force", false, "skip the confirmation prompt")
	caseClearCmd.Flags().String("backup", "", "write a JSON backup of all cases to this path first")

	caseCmd.AddCommand(caseNewCmd, caseListCmd, caseShowCmd, caseNextCmd,
		caseAnswerCmd, caseAnalyzeCmd, caseScopeCmd, caseHypothesisCmd,
		caseParkCmd, caseResolveCmd, caseClearCmd)
	rootCmd.AddCommand(caseCmd)
}
