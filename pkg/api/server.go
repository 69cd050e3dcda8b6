// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/NVIDIA/unithost/pkg/config"
	"github.com/NVIDIA/unithost/pkg/dispatch"
	"github.com/NVIDIA/unithost/pkg/loader"
	"github.com/NVIDIA/unithost/pkg/logging"
	"github.com/NVIDIA/unithost/pkg/manager"
	"github.com/NVIDIA/unithost/pkg/pipeline"
	"github.com/NVIDIA/unithost/pkg/registry"
	"github.com/NVIDIA/unithost/pkg/restart"
	"github.com/NVIDIA/unithost/pkg/server"
)

const (
	name           = "unithostd"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags to reflect actual version info
	// e.g., -X "github.com/NVIDIA/unithost/pkg/api.version=1.0.0"
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Serve reconciles the managed root, then serves the management API and unit
// dispatch until ctx is canceled or the process receives SIGINT/SIGTERM.
func Serve(ctx context.Context, cfg *config.Config) error {
	logging.SetDefaultStructuredLoggerWithLevel(name, version, cfg.LogLevel)
	slog.Info("starting",
		"name", name,
		"version", version,
		"commit", commit,
		"date", date,
		"root", cfg.Root,
		"restart", cfg.Restart.Enabled,
	)

	reg := registry.New()
	disp := dispatch.New(reg)

	m, err := NewManager(cfg, reg, disp)
	if err != nil {
		return err
	}

	report, err := m.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}
	slog.Info("units reconciled",
		"loaded", len(report.Loaded),
		"restored", len(report.Restored),
		"purged", len(report.Purged),
	)

	s := NewServer(cfg, m, disp)
	restart.NotifyReady()

	if err := s.Run(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		return err
	}

	return nil
}

// NewManager builds the lifecycle manager described by cfg. Changes
// invalidate the dispatcher's cached adapters.
func NewManager(cfg *config.Config, reg *registry.Registry, disp *dispatch.Dispatcher) (*manager.Manager, error) {
	runner := pipeline.NewExecRunner(cfg.Build.Timeout)

	p, err := pipeline.New(
		pipeline.WithRunner(runner),
		pipeline.WithBuildSteps(cfg.Build.Steps...),
		pipeline.WithPruneDirs(cfg.Build.Prune...),
		pipeline.WithBranches(cfg.Git.Branches...),
		pipeline.WithSSHRewrite(cfg.Git.SSHRewrite),
	)
	if err != nil {
		return nil, err
	}

	pl := loader.NewPluginLoader(cfg.Plugin.CacheDir)
	pl.Artifact = cfg.Plugin.Artifact
	pl.Symbol = cfg.Plugin.Symbol

	var rs restart.Restarter = restart.Noop{}
	if cfg.Restart.Enabled {
		rs = restart.NewProcessRestarter(cfg.Restart.Delay)
	}

	return manager.New(cfg.Root,
		manager.WithPipeline(p),
		manager.WithLoader(pl),
		manager.WithRegistry(reg),
		manager.WithRestarter(rs),
		manager.WithRunner(runner),
		manager.WithChangeHook(disp.Invalidate),
	)
}

// NewServer mounts the management routes and falls back to unit dispatch.
func NewServer(cfg *config.Config, m *manager.Manager, disp *dispatch.Dispatcher) *server.Server {
	sc := server.NewConfig()
	sc.Address = cfg.Server.Address
	sc.Port = cfg.Server.Port
	sc.RateLimit = rate.Limit(cfg.Server.RateLimit)
	sc.RateLimitBurst = cfg.Server.RateLimitBurst

	return server.New(
		server.WithConfig(sc),
		server.WithName(name),
		server.WithVersion(version),
		server.WithHandler(NewHandler(m).Routes()),
		server.WithFallback(disp.Middleware(http.HandlerFunc(server.NotFound))),
	)
}
