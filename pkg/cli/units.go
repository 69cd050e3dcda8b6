/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/urfave/cli/v3"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

func installCmd() *cli.Command {
	return &cli.Command{
		Name:      "install",
		Usage:     "Install a unit from a git repository",
		ArgsUsage: "<source-url>",
		Description: `Clone, build and load a unit. The unit name is the last path segment
of the source URL without a ".git" suffix.

  unithost install https://github.com/acme/sample-unit.git`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			source, err := requireArg(cmd, "source URL")
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			unitName, err := c.Install(ctx, source)
			if err != nil {
				return err
			}
			success(cmd.Root().Writer, "installed %s, serving at /%s", unitName, unitName)
			return nil
		},
	}
}

func updateCmd() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Pull and rebuild an installed unit",
		ArgsUsage: "<name>",
		Description: `Fetch the unit's tracked branch and rebuild it when the remote head
moved. The resulting metadata is printed as a summary line, or in full
when --format or --output is given.

  unithost update sample-unit
  unithost update sample-unit --format yaml`,
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
			md, err := c.Update(ctx, unitName)
			if err != nil {
				return err
			}
			if cmd.IsSet("format") || cmd.IsSet("output") {
				return writeOutput(ctx, cmd, &md)
			}
			ver := md.Version
			if ver == "" {
				ver = "unversioned"
			}
			success(cmd.Root().Writer, "updated %s to %s (%s)", md.Name, ver, shortCommit(md.Commit))
			return nil
		},
	}
}

func uninstallCmd() *cli.Command {
	return &cli.Command{
		Name:      "uninstall",
		Usage:     "Remove an installed unit",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "skip the confirmation prompt",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			unitName, err := requireArg(cmd, "unit name")
			if err != nil {
				return err
			}

			if !cmd.Bool("yes") {
				confirmed := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Uninstall %s and delete its directory?", unitName),
				}
				if err := survey.AskOne(prompt, &confirmed); err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.Root().Writer, "aborted")
					return nil
				}
			}

			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.Uninstall(ctx, unitName); err != nil {
				return err
			}
			success(cmd.Root().Writer, "uninstalled %s", unitName)
			return nil
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List installed units",
		Flags: []cli.Flag{
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			units, err := c.List(ctx)
			if err != nil {
				return err
			}
			return writeOutput(ctx, cmd, units)
		},
	}
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			fmt.Sprintf("expected exactly one argument: %s", what),
			map[string]any{"args": cmd.Args().Slice()})
	}
	return cmd.Args().First(), nil
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
