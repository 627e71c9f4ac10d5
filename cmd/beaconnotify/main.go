// Beacon Notify - realtime beacon proximity notifications
//
// This is the main entry point. The serve command runs the WebSocket
// service; migrate, token, user, beacon and audit are operator tools that
// work on the same database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/beacon-notify-core/internal/audit"
	_ "github.com/nerrad567/beacon-notify-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree.
func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "beaconnotify"
	app.Usage = "realtime beacon proximity notification service"
	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML configuration file",
			Value:   defaultConfigPath,
			EnvVars: []string{"BEACONNOTIFY_CONFIG"},
		},
	}
	app.Action = cli.ShowAppHelp
	app.Commands = []*cli.Command{
		{
			Name:        "serve",
			Usage:       "Start the realtime service",
			Category:    "Service",
			Description: `Serves the WebSocket endpoint and, when enabled, the MQTT sink and ingest, InfluxDB telemetry and the Redis channel layer.`,
			Action: func(cctx *cli.Context) error {
				return runServe(cctx.Context, cctx.String("config"))
			},
		},
		{
			Name:     "migrate",
			Usage:    "Apply or inspect database migrations",
			Category: "Database",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "down", Usage: "roll back the most recent migration"},
				&cli.BoolFlag{Name: "status", Usage: "list applied and pending migrations"},
			},
			Action: func(cctx *cli.Context) error {
				return runMigrate(cctx.Context, cctx.App.Writer, cctx.String("config"), cctx.Bool("down"), cctx.Bool("status"))
			},
		},
		{
			Name:      "token",
			Usage:     "Issue an access token for a user",
			Category:  "Operator",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "user-id", Usage: "ID of an active user", Required: true},
				&cli.IntFlag{Name: "ttl", Usage: "token lifetime in minutes (default: security.jwt.access_token_ttl)"},
			},
			Action: func(cctx *cli.Context) error {
				return runToken(cctx.Context, cctx.App.Writer, cctx.String("config"), cctx.String("user-id"), cctx.Int("ttl"))
			},
		},
		{
			Name:     "user",
			Usage:    "Manage users",
			Category: "Operator",
			Subcommands: []*cli.Command{
				{
					Name:  "create",
					Usage: "Register a user and print its ID",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "username", Required: true},
						&cli.StringFlag{Name: "display-name"},
					},
					Action: func(cctx *cli.Context) error {
						return runUserCreate(cctx.Context, cctx.App.Writer, cctx.String("config"),
							cctx.String("username"), cctx.String("display-name"))
					},
				},
				{
					Name:      "disable",
					Usage:     "Deactivate a user; new connections are rejected",
					ArgsUsage: "<user-id>",
					Action: func(cctx *cli.Context) error {
						return runUserSetActive(cctx.Context, cctx.String("config"), cctx.Args().First(), false)
					},
				},
				{
					Name:      "enable",
					Usage:     "Reactivate a user",
					ArgsUsage: "<user-id>",
					Action: func(cctx *cli.Context) error {
						return runUserSetActive(cctx.Context, cctx.String("config"), cctx.Args().First(), true)
					},
				},
			},
		},
		{
			Name:     "beacon",
			Usage:    "Manage beacons",
			Category: "Operator",
			Subcommands: []*cli.Command{
				{
					Name:  "create",
					Usage: "Register a beacon and print its ID",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "name", Required: true},
						&cli.StringFlag{Name: "uuid", Usage: "hardware UUID (generated when empty)"},
						&cli.BoolFlag{Name: "inactive", Usage: "register the beacon as inactive"},
					},
					Action: func(cctx *cli.Context) error {
						return runBeaconCreate(cctx.Context, cctx.App.Writer, cctx.String("config"),
							cctx.String("name"), cctx.String("uuid"), !cctx.Bool("inactive"))
					},
				},
				{
					Name:  "events",
					Usage: "List a user's most recent proximity events",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "user-id", Required: true},
						&cli.IntFlag{Name: "limit", Value: 20},
					},
					Action: func(cctx *cli.Context) error {
						return runBeaconEvents(cctx.Context, cctx.App.Writer, cctx.String("config"),
							cctx.String("user-id"), cctx.Int("limit"))
					},
				},
			},
		},
		{
			Name:     "audit",
			Usage:    "Inspect the audit trail",
			Category: "Operator",
			Subcommands: []*cli.Command{
				{
					Name:  "list",
					Usage: "List audit entries, newest first",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "action", Usage: "acknowledge or auth_reject"},
						&cli.StringFlag{Name: "user-id"},
						&cli.IntFlag{Name: "limit", Value: 50},
					},
					Action: func(cctx *cli.Context) error {
						return runAuditList(cctx.Context, cctx.App.Writer, cctx.String("config"), audit.Filter{
							Action: cctx.String("action"),
							UserID: cctx.String("user-id"),
							Limit:  cctx.Int("limit"),
						})
					},
				},
			},
		},
	}
	return app
}
