package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/posoffline/cmd/app/commands"
	"github.com/allisson/posoffline/internal/app"
	"github.com/allisson/posoffline/internal/config"
	"github.com/allisson/posoffline/internal/database"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the offline engine and the local control API",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), database.Config{
					Path:        cfg.StorePath,
					BusyTimeout: cfg.StoreBusyTimeout,
					QuotaBytes:  cfg.StoreQuotaBytes,
				})
			},
		},
		{
			Name:  "store",
			Usage: "Inspect or rebuild the durable local store",
			Commands: []*cli.Command{
				{
					Name:  "verify",
					Usage: "Check the store schema and integrity",
					Flags: []cli.Flag{formatFlag()},
					Action: func(ctx context.Context, cmd *cli.Command) error {
						cfg := config.Load()
						container := app.NewContainer(cfg)
						defer func() { _ = container.Shutdown(ctx) }()

						s, err := container.Store()
						if err != nil {
							return err
						}

						return commands.RunStoreVerify(
							ctx,
							s,
							container.Logger(),
							commands.DefaultIO().Writer,
							cmd.String("format"),
						)
					},
				},
				{
					Name:  "reset",
					Usage: "Delete every local record and recreate the schema",
					Flags: []cli.Flag{
						&cli.BoolFlag{
							Name:    "force",
							Aliases: []string{"y"},
							Usage:   "Skip the confirmation prompt",
						},
					},
					Action: func(ctx context.Context, cmd *cli.Command) error {
						cfg := config.Load()
						container := app.NewContainer(cfg)
						defer func() { _ = container.Shutdown(ctx) }()

						s, err := container.Store()
						if err != nil {
							return err
						}

						return commands.RunStoreReset(
							ctx,
							s,
							container.Logger(),
							commands.DefaultIO(),
							cmd.Bool("force"),
						)
					},
				},
			},
		},
	}
}
