package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/allisson/posoffline/cmd/app/commands"
	"github.com/allisson/posoffline/internal/app"
	"github.com/allisson/posoffline/internal/config"
)

func getQueueCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "sync-now",
			Usage: "Probe the remote authority and run a full sync pass",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				monitor, err := container.ConnectivityMonitor()
				if err != nil {
					return err
				}
				manager, err := container.SyncManager()
				if err != nil {
					return err
				}

				return commands.RunSyncNow(
					ctx,
					monitor,
					manager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "queue-stats",
			Usage: "Show pending, dead-lettered and retained operation counts",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				queue, err := container.OutboxUseCase()
				if err != nil {
					return err
				}

				return commands.RunQueueStats(
					ctx,
					queue,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "clean",
			Usage: "Delete synced operations, sync errors and idle sessions past retention",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show what is retained without deleting",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				queue, err := container.OutboxUseCase()
				if err != nil {
					return err
				}
				sessions, err := container.SessionPersistence()
				if err != nil {
					return err
				}

				return commands.RunClean(
					ctx,
					queue,
					sessions,
					container.Logger(),
					commands.DefaultIO().Writer,
					commands.Retention{
						Operations: cfg.RetentionOperations,
						Errors:     cfg.RetentionErrors,
						Sessions:   cfg.RetentionSessions,
					},
					time.Now().UTC(),
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "replay-failed",
			Usage: "Put dead-lettered operations back in the queue",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "Operation ID to replay (repeatable; omit to replay all)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				queue, err := container.OutboxUseCase()
				if err != nil {
					return err
				}

				return commands.RunReplayFailed(
					ctx,
					queue,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("id"),
					cmd.String("format"),
				)
			},
		},
	}
}
