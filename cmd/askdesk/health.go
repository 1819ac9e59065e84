package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdesk/askdesk/pkg/client"
)

func newHealthCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the API server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			cl := client.New(cfg.API.URL, cfg.API.Timeout, cfg.API.HealthTimeout)
			hr, err := cl.Health(context.Background())
			if err != nil {
				fmt.Println(connectionLabel(false), cl.BaseURL())
				return fmt.Errorf("health check: %w", err)
			}
			fmt.Printf("%s %s\nStatus:  %s\nMessage: %s\n", connectionLabel(true), cl.BaseURL(), hr.Status, hr.Message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
