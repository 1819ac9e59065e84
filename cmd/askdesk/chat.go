package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdesk/askdesk/pkg/assistant"
	"github.com/askdesk/askdesk/pkg/cache/sqlite"
	"github.com/askdesk/askdesk/pkg/client"
	"github.com/askdesk/askdesk/pkg/config"
	"github.com/askdesk/askdesk/pkg/logging"
)

func newChatCmd() *cobra.Command {
	var (
		configPath  string
		historyPath string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question session",
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

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cl := client.New(cfg.API.URL, cfg.API.Timeout, cfg.API.HealthTimeout)

			var answers assistant.AnswerCache
			if cfg.Database.Enabled {
				c, err := openAnswerCache(cfg, log)
				if err != nil {
					return err
				}
				defer func() {
					cancel()
					_ = c.Close()
				}()
				if cfg.Database.CleanupInterval > 0 {
					go c.RunJanitor(ctx, sqlite.JanitorConfig{
						InitialDelay: cfg.Database.CleanupDelay,
						Interval:     cfg.Database.CleanupInterval,
						MaxAgeDays:   cfg.Database.MaxAgeDays,
						MaxEntries:   cfg.Database.MaxEntries,
					})
				}
				answers = c
			}

			session := assistant.NewSession(cl, answers, log)
			session.Refresh(ctx)
			if cfg.API.HealthInterval > 0 {
				go cl.Monitor(ctx, cfg.API.HealthInterval, session.SetConnected)
			}

			if historyPath == "" {
				historyPath = defaultHistoryPath()
			}
			return runChat(ctx, cl, session, historyPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&historyPath, "history", "", "input history file (default ~/.askdesk_history)")
	return cmd
}

func runChat(ctx context.Context, cl *client.Client, session *assistant.Session, historyPath string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, historyPath)

	out := os.Stdout
	printWelcome(out, cl.BaseURL())

	for {
		prompt := connectionLabel(session.Connected()) + " " + userStyle.Render("You> ")
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := handleChatCommand(ctx, out, cl, session, input); quit {
				return nil
			}
			continue
		}

		fmt.Fprintln(out, systemStyle.Render("Thinking..."))
		qctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		reply := session.Ask(qctx, input)
		cancelled := qctx.Err() != nil && ctx.Err() == nil
		stop()
		if cancelled {
			fmt.Fprintln(out, noticeStyle.Render("Request cancelled"))
			continue
		}
		printReply(out, reply)
		fmt.Fprintln(out)
	}
}

// handleChatCommand runs a slash command and reports whether to exit.
func handleChatCommand(ctx context.Context, out io.Writer, cl *client.Client, session *assistant.Session, input string) bool {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit", "/q":
		return true
	case "/clear":
		fmt.Fprint(out, "\033[H\033[2J")
		printWelcome(out, cl.BaseURL())
	case "/status":
		ok := session.Refresh(ctx)
		fmt.Fprintf(out, "%s  %s\n", connectionLabel(ok), cl.BaseURL())
	case "/help":
		fmt.Fprintln(out, systemStyle.Render(strings.Join([]string{
			"/status  check the backend connection",
			"/clear   clear the screen",
			"/quit    leave the session",
		}, "\n")))
	default:
		fmt.Fprintln(out, noticeStyle.Render("Unknown command "+input+", try /help"))
	}
	return false
}

func saveHistory(line *liner.State, path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askdesk_history"
	}
	return filepath.Join(home, ".askdesk_history")
}

func openAnswerCache(cfg *config.Config, log *zap.Logger) (*sqlite.Cache, error) {
	c, err := sqlite.New(cfg.Database.Path, sqlite.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("init answer cache: %w", err)
	}
	return c, nil
}
