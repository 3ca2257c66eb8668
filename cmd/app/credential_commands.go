package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/posoffline/cmd/app/commands"
	"github.com/allisson/posoffline/internal/app"
	"github.com/allisson/posoffline/internal/config"
	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
)

func getCredentialCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "cache-credential",
			Usage: "Cache a credential record issued by the remote authority for offline login",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Remote user ID",
				},
				&cli.StringFlag{
					Name:     "login",
					Aliases:  []string{"l"},
					Required: true,
					Usage:    "User login",
				},
				&cli.StringFlag{
					Name:    "name",
					Aliases: []string{"n"},
					Usage:   "Display name",
				},
				&cli.StringFlag{
					Name:     "pin-hash",
					Required: true,
					Usage:    "Secret hash as issued by the remote authority",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				authenticator, err := container.Authenticator()
				if err != nil {
					return err
				}

				return commands.RunCacheCredential(
					ctx,
					authenticator,
					container.Logger(),
					commands.DefaultIO().Writer,
					&credentialDomain.RemoteCredential{
						ID:         cmd.Int64("id"),
						Login:      cmd.String("login"),
						Name:       cmd.String("name"),
						SecretHash: cmd.String("pin-hash"),
					},
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "credentials",
			Usage: "Manage the offline credential cache",
			Commands: []*cli.Command{
				{
					Name:  "list",
					Usage: "List cached credentials",
					Flags: []cli.Flag{formatFlag()},
					Action: func(ctx context.Context, cmd *cli.Command) error {
						cfg := config.Load()
						container := app.NewContainer(cfg)
						defer func() { _ = container.Shutdown(ctx) }()

						authenticator, err := container.Authenticator()
						if err != nil {
							return err
						}

						return commands.RunListCredentials(
							ctx,
							authenticator,
							commands.DefaultIO().Writer,
							cmd.String("format"),
						)
					},
				},
				{
					Name:  "clear",
					Usage: "Remove every cached credential and offline session",
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

						authenticator, err := container.Authenticator()
						if err != nil {
							return err
						}

						return commands.RunClearCredentials(
							ctx,
							authenticator,
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
