// Package cli is the tquiz command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/victornm/tquiz/internal/config"
	"github.com/victornm/tquiz/internal/server"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var o rootOptions

	cmd := &cobra.Command{
		Use:           "tquiz",
		Short:         "Timed trivia quiz service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogger(o.logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file (env CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")

	cmd.AddCommand(newServeCmd(&o))
	cmd.AddCommand(newMigrateCmd(&o))
	cmd.AddCommand(newQuestionsCmd(&o))

	return cmd
}

func setupLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func loadConfig(o *rootOptions) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(o.configPath, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	if c.TTS.APIKey == "" {
		c.TTS.APIKey = os.Getenv("SARVAM_AI_API_KEY")
	}

	return c, nil
}
