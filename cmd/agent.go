package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/triagekit/triage/internal/agent"
	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/progress"
	"github.com/triagekit/triage/internal/templates"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run bounded autonomous sessions against a case",
}

var agentStartCmd = &cobra.Command{
	Use:   "start <case-id>",
	Short: "Create an agent session and run it",
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

		orch, store, tmplStore, err := buildOrchestrator(cmd.Context(), cfg, database)
		if err != nil {
			return err
		}
		manager := agent.NewManager(cfg.StoreDir, store)

		c, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var tmpl *templates.Template
		if c.TemplateID != "" {
			if t, err := tmplStore.Get(cmd.Context(), c.TemplateID); err == nil {
				tmpl = t
			}
		}

		maxIter := cfg.Agent.MaxIterations
		if cmd.Flags().Changed("max-iterations") {
			maxIter, _ = cmd.Flags().GetInt("max-iterations")
		}
		maxMin := cfg.Agent.MaxDurationMinutes
		if cmd.Flags().Changed("max-minutes") {
			maxMin, _ = cmd.Flags().GetInt("max-minutes")
		}
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		personality, _ := cmd.Flags().GetString("personality")

		limits := agent.Limits{
			MaxIterations: maxIter,
			MaxDuration:   time.Duration(maxMin) * time.Minute,
			AutoApprove:   autoApprove || cfg.Agent.AutoApprove,
			DeniedActions: cfg.Agent.DeniedActions,
		}
		s, err := manager.CreateSession(cmd.Context(), c.ID, tmpl, personality, limits)
		if err != nil {
			return err
		}
		fmt.Printf("Started session %s\n", s.ID)

		runner := agent.NewRunner(manager, orch, buildOracle(cfg, store),
			agent.CLIApproval{}, progress.NewReporter())
		return reportRun(runner.Run(cmd.Context(), s.ID))
	},
}

var agentRunCmd = &cobra.Command{
	Use:   "run <session-id>",
	Short: "Run an existing active session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExistingSession(cmd, args[0], false)
	},
}

var agentResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused session and continue running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExistingSession(cmd, args[0], true)
	},
}

func runExistingSession(cmd *cobra.Command, sessionID string, resume bool) error {
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
	manager := agent.NewManager(cfg.StoreDir, store)

	if resume {
		if _, err := manager.Resume(sessionID); err != nil {
			return err
		}
		fmt.Printf("Session %s resumed\n", sessionID)
	}

	runner := agent.NewRunner(manager, orch, buildOracle(cfg, store),
		agent.CLIApproval{}, progress.NewReporter())
	return reportRun(runner.Run(cmd.Context(), sessionID))
}

func reportRun(res *agent.RunResult, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Session %s is %s after %d iteration(s): %s\n",
		res.SessionID, res.Status, res.Iterations, res.StopReason)
	return nil
}

var agentPauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Pause an active session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *agent.Manager) error {
			s, err := m.Pause(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Session %s paused after %d iteration(s)\n", s.ID, s.Metrics.Iterations)
			return nil
		})
	},
}

var agentTerminateCmd = &cobra.Command{
	Use:   "terminate <session-id>",
	Short: "Permanently end a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *agent.Manager) error {
			s, err := m.Terminate(args[0], "terminated by operator")
			if err != nil {
				return err
			}
			fmt.Printf("Session %s terminated\n", s.ID)
			return nil
		})
	},
}

var agentStatusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show one session, or all non-terminal sessions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *agent.Manager) error {
			if len(args) == 1 {
				s, err := m.Load(args[0])
				if err != nil {
					return err
				}
				printSession(s)
				return nil
			}
			list, err := m.ListActive()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No active sessions.")
				return nil
			}
			for _, s := range list {
				printSession(s)
			}
			return nil
		})
	},
}

func printSession(s *agent.Session) {
	fmt.Printf("%s  case=%s  %s/%s  iterations=%d  tokens=%d+%d",
		s.ID, s.CaseID, s.Status, s.RunState, s.Metrics.Iterations,
		s.Metrics.PromptTokens, s.Metrics.CompletionTokens)
	if s.StopReason != "" {
		fmt.Printf("  (%s)", s.StopReason)
	}
	fmt.Println()
}

// withManager runs fn with a session manager wired from config.
func withManager(fn func(*agent.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(agent.NewManager(cfg.StoreDir, cases.NewStore(database)))
}

func init() {
	agentStartCmd.Flags().Int("max-iterations", 0, "iteration cap for this session (overrides config)")
	agentStartCmd.Flags().Int("max-minutes", 0, "duration cap in minutes (overrides config)")
	agentStartCmd.Flags().Bool("auto-approve", false, "execute medium and high impact actions without prompting")
	agentStartCmd.Flags().String("personality", "", "personality prose injected into the system prompt")

	agentCmd.AddCommand(agentStartCmd, agentRunCmd, agentPauseCmd,
		agentResumeCmd, agentTerminateCmd, agentStatusCmd)
	rootCmd.AddCommand(agentCmd)
}
