package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdesk/askdesk/pkg/cache/sqlite"
	"github.com/askdesk/askdesk/pkg/config"
	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/models"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	// withCache opens the answer cache named in the config and runs fn.
	withCache := func(fn func(ctx context.Context, cfg *config.Config, c *sqlite.Cache) error) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		c, err := openAnswerCache(cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return fn(context.Background(), cfg, c)
	}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local answer cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show answer cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, _ *config.Config, c *sqlite.Cache) error {
				stats, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Entries: %d\nSize:    %.2f MB\n", stats.Entries, stats.SizeMB)
				printQuestionStats("Most popular", stats.Popular)
				printQuestionStats("Most recent", stats.Recent)
				return nil
			})
		},
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, _ *config.Config, c *sqlite.Cache) error {
				entries, err := c.List(ctx, limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Println("Answer cache is empty.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tQUESTION\tHITS\tLAST ACCESSED")
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
						e.ID, logging.Truncate(e.Question, 60), e.AccessCount, formatUnix(e.LastAccessed))
				}
				return w.Flush()
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show (0 for all)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, _ *config.Config, c *sqlite.Cache) error {
				if err := c.Clear(ctx); err != nil {
					return err
				}
				fmt.Println("All cache entries cleared.")
				return nil
			})
		},
	}

	var (
		maxAgeDays int
		maxEntries int
	)
	evictCmd := &cobra.Command{
		Use:   "evict",
		Short: "Remove stale or surplus cached answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, cfg *config.Config, c *sqlite.Cache) error {
				if !cmd.Flags().Changed("max-age-days") {
					maxAgeDays = cfg.Database.MaxAgeDays
				}
				if !cmd.Flags().Changed("max-entries") {
					maxEntries = cfg.Database.MaxEntries
				}
				deleted, err := c.Evict(ctx, maxAgeDays, maxEntries)
				if err != nil {
					return err
				}
				fmt.Printf("Evicted %d cache entries.\n", deleted)
				return nil
			})
		},
	}
	evictCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 30, "remove entries not accessed for this many days (default from config)")
	evictCmd.Flags().IntVar(&maxEntries, "max-entries", 1000, "maximum entries to keep (default from config)")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, listCmd, clearCmd, evictCmd)
	return cmd
}

func printQuestionStats(title string, stats []models.QuestionStat) {
	if len(stats) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUESTION\tHITS\tLAST ACCESSED")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%s\n", logging.Truncate(s.Question, 60), s.AccessCount, formatUnix(s.LastAccessed))
	}
	_ = w.Flush()
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).Format("2006-01-02T15:04:05")
}

