// nero is a command-line front end for the Nero companion: an interactive
// chat plus one-shot commands for energy, tasks, reminders and focus
// sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goblincore/nero"
	"github.com/goblincore/nero/internal/config"
)

var version = "dev"

var (
	cfgPath string
	fileCfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nero",
		Short: "Nero - a companion that helps you actually do things",
		Long: `Nero remembers what you said you'd do, notices when your energy
tends to peak and nudges you at the right moment.

Run 'nero chat' to talk, or use the subcommands directly.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
				cfg.DataDir = dir
			}
			fileCfg = cfg
			setupLogging(cfg.LogLevel)
			return os.MkdirAll(cfg.DataDir, 0o755)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: ./nero.yaml or ~/.nero/nero.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the local store and SQLite database")

	rootCmd.AddCommand(
		chatCmd(),
		energyCmd(),
		tasksCmd(),
		suggestCmd(),
		patternsCmd(),
		remindCmd(),
		statusCmd(),
		resetCmd(),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// openCompanion starts a companion for one command. Background workers only
// matter for chat, which keeps its own companion open.
func openCompanion(ctx context.Context, onPrompt func(nero.Prompt)) (*nero.Companion, error) {
	nc := fileCfg.Nero()
	nc.OnPrompt = onPrompt
	if fileCfg.Voice.Output != "" && fileCfg.LLM.OpenAIAPIKey != "" {
		f, err := os.OpenFile(fileCfg.Voice.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open voice output: %w", err)
		}
		nc.Speaker = nero.NewOpenAISpeaker(fileCfg.LLM.OpenAIAPIKey, f, nero.WithCompleterBaseURL(fileCfg.LLM.OpenAIBaseURL))
	}
	return nero.Init(ctx, nc)
}

// withCompanion runs fn against a freshly opened companion and closes it.
func withCompanion(cmd *cobra.Command, fn func(ctx context.Context, c *nero.Companion) error) error {
	ctx := cmd.Context()
	c, err := openCompanion(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func energyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "energy <1-5> [mood]",
		Short: "Log how much energy you have right now",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("energy must be a number from 1 to 5")
			}
			mood := ""
			if len(args) > 1 {
				mood = args[1]
			}
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				sg, err := c.LogEnergy(ctx, level, mood)
				if err != nil {
					return err
				}
				fmt.Printf("Logged energy %d/5.\n", level)
				if sg != nil {
					fmt.Printf("Maybe now: %s (%s)\n", sg.Task.Description, sg.Reason)
				}
				return nil
			})
		},
	}
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			showDone, _ := cmd.Flags().GetBool("done")
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				if showDone {
					printTasks(c.CompletedTasks(), time.Now())
					return nil
				}
				printTasks(c.OpenTasks(), time.Now())
				return nil
			})
		},
	}
	cmd.Flags().Bool("done", false, "show tasks completed in the last two weeks")

	cmd.AddCommand(&cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				t, err := c.CompleteTask(ctx, resolveTaskID(c, args[0]))
				if err != nil {
					return err
				}
				fmt.Printf("Done: %s\n", t.Description)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <task-id>",
		Short: "Drop a task without completing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				if err := c.DeleteTask(ctx, resolveTaskID(c, args[0])); err != nil {
					return err
				}
				fmt.Println("Dropped.")
				return nil
			})
		},
	})
	return cmd
}

// resolveTaskID accepts a full ID, an ID prefix or a 1-based list index.
func resolveTaskID(c *nero.Companion, arg string) string {
	open := c.OpenTasks()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(open) {
		return open[n-1].ID
	}
	for _, t := range open {
		if strings.HasPrefix(t.ID, arg) {
			return t.ID
		}
	}
	return arg
}

func printTasks(tasks []nero.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Println("Nothing here.")
		return
	}
	for i, t := range tasks {
		when := humanize.RelTime(t.CreatedAt, now, "ago", "from now")
		if t.CompletedAt != nil {
			when = "done " + humanize.RelTime(*t.CompletedAt, now, "ago", "from now")
		}
		fmt.Printf("%2d. %s  [%s, %s]\n", i+1, t.Description, shortID(t.ID), when)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "What should I do now?",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				_, text := c.Suggest()
				fmt.Println(text)
				return nil
			})
		},
	}
}

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Show the patterns Nero has noticed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				c.RefreshPatterns(ctx)
				patterns := c.Patterns()
				if len(patterns) == 0 {
					fmt.Println("No patterns yet. Log your energy and finish a few tasks.")
					return nil
				}
				for _, p := range patterns {
					fmt.Printf("- %s (%.0f%% sure, %d data points)\n", p.Description, p.Confidence*100, p.Evidence)
				}
				return nil
			})
		},
	}
}

func remindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind <in> <message...>",
		Short: "Schedule a reminder, e.g. 'nero remind 30m stretch'",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("invalid delay %q: %w", args[0], err)
			}
			recurrence, _ := cmd.Flags().GetString("every")
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				n, err := c.ScheduleNudge(ctx, strings.Join(args[1:], " "), time.Now().Add(d), recurrence)
				if err != nil {
					return err
				}
				fmt.Printf("I'll remind you %s.\n", humanize.Time(n.ScheduledFor))
				return nil
			})
		},
	}
	cmd.Flags().String("every", "", "cron expression to repeat the reminder, e.g. '0 9 * * 1-5'")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what Nero remembers about you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				st := c.Status()
				p := st.Profile
				name := p.Facts.Name
				if name == "" {
					name = "(unknown)"
				}
				fmt.Printf("Name:          %s\n", name)
				fmt.Printf("Conversations: %s\n", humanize.Comma(int64(p.Facts.TotalConversations)))
				if !st.LastSeen.IsZero() {
					fmt.Printf("Last seen:     %s\n", humanize.Time(st.LastSeen))
				}
				if st.Energy != nil {
					fmt.Printf("Energy:        %d/5 %s\n", st.Energy.Level, st.Energy.Mood)
				}
				fmt.Printf("Open tasks:    %d\n", len(st.OpenTasks))
				fmt.Printf("Patterns:      %d\n", len(st.Patterns))
				fmt.Printf("Sync:          %s\n", st.Sync)
				if st.Unsent > 0 {
					fmt.Printf("Unsent:        %d\n", st.Unsent)
				}
				fmt.Printf("LLM replies:   %v\n", st.LLM)
				if len(p.Patterns.KnownStruggles) > 0 {
					fmt.Printf("Struggles:     %s\n", strings.Join(p.Patterns.KnownStruggles, "; "))
				}
				if len(p.Remembered) > 0 {
					fmt.Printf("Remembered:    %s\n", strings.Join(p.Remembered, "; "))
				}
				return nil
			})
		},
	}
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget your profile and conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("this forgets everything Nero knows about you; rerun with --yes")
			}
			return withCompanion(cmd, func(ctx context.Context, c *nero.Companion) error {
				if err := c.Reset(ctx); err != nil {
					return err
				}
				fmt.Println("Memory cleared.")
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "confirm")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to <data-dir>/nero.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				path = filepath.Join(fileCfg.DataDir, "nero.yaml")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(fileCfg, path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
