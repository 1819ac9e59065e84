package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askdesk/askdesk/pkg/assistant"
	"github.com/askdesk/askdesk/pkg/client"
	"github.com/askdesk/askdesk/pkg/logging"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
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

			var answers assistant.AnswerCache
			if cfg.Database.Enabled && !noCache {
				c, err := openAnswerCache(cfg, log)
				if err != nil {
					return err
				}
				defer func() { _ = c.Close() }()
				answers = c
			}

			cl := client.New(cfg.API.URL, cfg.API.Timeout, cfg.API.HealthTimeout)
			session := assistant.NewSession(cl, answers, log)
			session.Refresh(ctx)

			reply := session.Ask(ctx, strings.Join(args, " "))
			printReply(os.Stdout, reply)
			if reply.Kind == assistant.KindError || reply.Kind == assistant.KindSystem {
				return errors.New("question not answered")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the local answer cache")
	return cmd
}
