package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/ratelimit"
	"github.com/askdesk/askdesk/pkg/resolver"
	"github.com/askdesk/askdesk/pkg/server"
	"github.com/askdesk/askdesk/pkg/tracker"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question API server",
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
			if cfg.Resolver.SweepInterval > 0 {
				go res.Memory().Run(ctx, cfg.Resolver.SweepInterval)
			}

			var limiter *ratelimit.Limiter
			if cfg.RateLimit.Enabled {
				limiter = ratelimit.New(ratelimit.Config{
					Window:      cfg.RateLimit.Window,
					MaxRequests: cfg.RateLimit.MaxRequests,
					MaxClients:  cfg.RateLimit.MaxClients,
				})
				go limiter.Run(ctx, cfg.RateLimit.Window)
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

			srv := server.New(cfg, res, limiter, tr, log)
			log.Info("starting askdesk server",
				zap.String("config", configPath),
				zap.String("listen", cfg.Listen),
				zap.Int("models", len(cfg.Models)),
				zap.Bool("rate_limit", cfg.RateLimit.Enabled),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
