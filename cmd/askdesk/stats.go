package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdesk/askdesk/pkg/tracker"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		since      time.Duration
		clientID   string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show answered-question statistics from the server's tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.Tracker.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			// Per-client detail view
			if clientID != "" {
				recs, err := tr.QueryByClient(ctx, clientID, from)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Println("No queries found for client.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSOURCE\tMODEL\tATTEMPTS\tTOKENS\tLATENCY")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%dms\n",
						r.CreatedAt.Local().Format("2006-01-02T15:04:05"), r.Source, orDash(r.Model), r.Attempts, r.TotalTokens, r.LatencyMs)
				}
				return w.Flush()
			}

			summaries, err := tr.Summary(ctx, from)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No query data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tMODEL\tQUERIES\tATTEMPTS\tTOKENS\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.0fms\n",
					s.Source, orDash(s.Model), s.RequestCount, s.TotalAttempts, s.TotalTokens, s.AvgLatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().DurationVar(&since, "since", 0, "only include queries newer than this (e.g. 24h)")
	cmd.Flags().StringVar(&clientID, "client", "", "show individual queries for one client")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
