/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/unithost/pkg/client"
	"github.com/NVIDIA/unithost/pkg/config"
	"github.com/NVIDIA/unithost/pkg/defaults"
	"github.com/NVIDIA/unithost/pkg/logging"
	"github.com/NVIDIA/unithost/pkg/serializer"
)

const (
	name           = "unithost"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Flags hold parse state, so every command gets its own instance.
func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file path (default: stdout)",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Value:   string(serializer.FormatTable),
		Usage:   fmt.Sprintf("output format (supported values: %s)", strings.Join(serializer.SupportedFormats(), ", ")),
	}
}

// Execute runs the unithost command line and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "unithost - install and serve HTTP units from git repositories",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: fmt.Sprintf("config file (default is ./%s)", defaults.ConfigFileName),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				Sources: cli.EnvVars(logging.EnvVarLogLevel),
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   defaults.ServerURL,
				Usage:   "unit host server URL (overrides server.url from the config file)",
				Sources: cli.EnvVars(defaults.EnvPrefix + "_SERVER_URL"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			installCmd(),
			updateCmd(),
			uninstallCmd(),
			listCmd(),
			envCmd(),
			versionCmd(),
		},
	}
}

// parseOutputFormat returns the --format value, rejecting unknown formats.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	f := serializer.Format(cmd.String("format"))
	if f.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q (supported: %s)",
			f, strings.Join(serializer.SupportedFormats(), ", "))
	}
	return f, nil
}

// newClient builds an API client. An explicit --server wins; otherwise
// server.url from the config file is used when one is present.
func newClient(cmd *cli.Command) (*client.Client, error) {
	serverURL := cmd.String("server")
	if !cmd.IsSet("server") {
		cfg, err := config.Load(cmd.String("config"))
		switch {
		case err == nil && cfg.Server.URL != "":
			serverURL = cfg.Server.URL
		case err != nil && cmd.String("config") != "":
			return nil, err
		}
	}
	return client.New(serverURL, client.WithUserAgent(name+"/"+version))
}
