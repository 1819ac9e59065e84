package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askdesk/askdesk/pkg/config"
)

var version = "dev"

const defaultConfigPath = "askdesk.yaml"

func main() {
	root := &cobra.Command{
		Use:           "askdesk",
		Short:         "askdesk - AI question assistant for university students",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newAskCmd(),
		newHealthCmd(),
		newCacheCmd(),
		newStatsCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
