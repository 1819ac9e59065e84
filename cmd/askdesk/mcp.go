package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/mcp"
	"github.com/askdesk/askdesk/pkg/resolver"
	"github.com/askdesk/askdesk/pkg/tracker"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve askdesk tools over stdio using the Model Context Protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			log, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := resolver.FromConfig(cfg, resolver.WithLogger(log))
			if err != nil {
				return fmt.Errorf("init resolver: %w", err)
			}

			var stats mcp.CacheStatter
			if cfg.Database.Enabled {
				c, err := openAnswerCache(cfg, log)
				if err != nil {
					return err
				}
				defer func() { _ = c.Close() }()
				stats = c
			}

			var tr tracker.Tracker
			if cfg.Tracker.Enabled {
				t, err := tracker.New(cfg.Tracker.DBPath)
				if err != nil {
					return fmt.Errorf("init tracker: %w", err)
				}
				defer func() { _ = t.Close() }()
				tr = t
			}

			srv := mcp.New(res, stats, tr, log, version)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
