/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/unithost/pkg/api"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/serializer"
)

func envCmd() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "Read or replace a unit's environment file",
		Commands: []*cli.Command{
			envGetCmd(),
			envSetCmd(),
		},
	}
}

func envGetCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a unit's environment variables",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			unitName, err := requireArg(cmd, "unit name")
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			env, err := c.Env(ctx, unitName)
			if err != nil {
				return err
			}
			return writeOutput(ctx, cmd, env)
		},
	}
}

func envSetCmd() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Replace a unit's environment variables",
		ArgsUsage: "<name> [KEY=VALUE ...]",
		Description: `Replace the unit's environment file with the given variables and
apply them to the server process. Variables may come from a YAML or JSON
file (an object of string values, or {"env": {...}}) and from KEY=VALUE
arguments, which take precedence.

  unithost env set sample-unit GREETING=hello PORT=9000
  unithost env set sample-unit --file env.yaml --merge`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "path or http(s) URL of a YAML/JSON file with variables",
			},
			&cli.BoolFlag{
				Name:  "merge",
				Usage: "keep existing variables not named in this call",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return cnserrors.New(cnserrors.ErrCodeInvalidRequest, "expected a unit name")
			}
			unitName := args[0]

			vars, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			env := map[string]string{}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if cmd.Bool("merge") {
				current, err := c.Env(ctx, unitName)
				if err != nil {
					return err
				}
				for k, v := range current.Env {
					env[k] = v
				}
			}
			if path := cmd.String("file"); path != "" {
				fromFile, err := loadEnvFile(path)
				if err != nil {
					return err
				}
				for k, v := range fromFile {
					env[k] = v
				}
			}
			for k, v := range vars {
				env[k] = v
			}

			if err := c.SetEnv(ctx, unitName, env); err != nil {
				return err
			}
			success(cmd.Root().Writer, "set %d variable(s) for %s", len(env), unitName)
			return nil
		},
	}
}

// parseAssignments turns KEY=VALUE arguments into a map. Values may contain
// further '=' characters.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
				"variables must be given as KEY=VALUE", map[string]any{"arg": a})
		}
		out[k] = v
	}
	return out, nil
}

// loadEnvFile accepts either the API body shape or a flat map.
func loadEnvFile(path string) (map[string]string, error) {
	body, err := serializer.FromFile[api.EnvBody](path)
	if err == nil && len(body.Env) > 0 {
		return body.Env, nil
	}
	flat, flatErr := serializer.FromFile[map[string]string](path)
	if flatErr != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"failed to load variables file", flatErr, map[string]any{"path": path})
	}
	if *flat == nil {
		return map[string]string{}, nil
	}
	return *flat, nil
}
