/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/unithost/pkg/api"
	"github.com/NVIDIA/unithost/pkg/config"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the unit host server",
		Description: `Reconcile the managed root directory, then serve the management API
and every installed unit until interrupted.

Settings come from the config file and UNITHOST_* environment variables.
The --port flag overrides server.port.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port (overrides server.port)",
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "managed root directory (overrides root)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if cmd.IsSet("log-level") {
				cfg.LogLevel = cmd.String("log-level")
			}
			if cmd.IsSet("port") {
				cfg.Server.Port = cmd.Int("port")
			}
			if cmd.IsSet("root") {
				cfg.Root = cmd.String("root")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return api.Serve(ctx, cfg)
		},
	}
}
