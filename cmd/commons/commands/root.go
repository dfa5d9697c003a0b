// Package commands defines the commons CLI surface over the session
// subsystem.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/commons-cli/internal/app"
	"github.com/florianilch/commons-cli/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "commons",
		Usage: "Commons platform session client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "platform--base-url",
				Usage: "platform API base URL",
				Value: app.DefaultConfigPlatformBaseURL,
			},
			&cli.StringFlag{
				Name:  "storage--backend",
				Usage: "credential storage backend (keyring|file|memory)",
				Value: string(app.DefaultConfigStorageBackend),
			},
			&cli.StringFlag{
				Name:  "storage--variant",
				Usage: "build variant namespace tag (prod|staging|dev)",
				Value: app.DefaultConfigVariant,
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			statusCommand(),
			revokeAllCommand(),
			diagnoseCommand(),
			wipeCommand(),
		},
	}

	defer func() {
		if err := observability.Shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintln(os.Stderr, "flushing logs:", err)
		}
	}()

	return cmd.Run(ctx, args)
}

// setup loads config, installs the log handler, and assembles the app.
// Shared by every subcommand action.
func setup(cmd *cli.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}
