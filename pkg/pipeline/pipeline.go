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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

// PluginPathVar expands, inside any build step argument, to a plugin path
// unique to that build. The Go runtime refuses to open a second plugin with
// a path it has already loaded.
const PluginPathVar = "{{pluginpath}}"

var (
	// DefaultBuildSteps install dependencies and build the unit as a Go plugin.
	DefaultBuildSteps = []string{
		"go mod download",
		"go build -buildmode=plugin -ldflags=-pluginpath=" + PluginPathVar + " -o dist/unit.so .",
	}

	// DefaultPruneDirs are removed after a successful build.
	DefaultPruneDirs = []string{"src", "server", ".github"}

	// DefaultBranches are the remote primary branch names tried in order.
	DefaultBranches = []string{"main", "master"}
)

// Pipeline runs the clone, version, build and prune steps for a unit.
// It never cleans up after a failed step; that is the caller's job.
type Pipeline struct {
	runner     Runner
	steps      [][]string
	pruneDirs  []string
	branches   []string
	sshRewrite bool
}

// Option is a functional option for configuring Pipeline instances.
type Option func(*Pipeline) error

// WithRunner sets the command runner.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) error {
		if r == nil {
			return fmt.Errorf("runner must not be nil")
		}
		p.runner = r
		return nil
	}
}

// WithBuildSteps sets the shell-quoted commands run, in order, to install
// dependencies and build the unit.
func WithBuildSteps(steps ...string) Option {
	return func(p *Pipeline) error {
		parsed, err := ParseSteps(steps)
		if err != nil {
			return err
		}
		p.steps = parsed
		return nil
	}
}

// WithPruneDirs sets the directories removed after a successful build.
func WithPruneDirs(dirs ...string) Option {
	return func(p *Pipeline) error {
		for _, d := range dirs {
			if d == "" || filepath.IsAbs(d) || strings.HasPrefix(filepath.Clean(d), "..") {
				return cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
					"prune directory must be relative to the unit", map[string]any{"dir": d})
			}
		}
		p.pruneDirs = dirs
		return nil
	}
}

// WithBranches sets the primary branch names tried when resolving origin.
func WithBranches(branches ...string) Option {
	return func(p *Pipeline) error {
		if len(branches) == 0 {
			return fmt.Errorf("at least one branch is required")
		}
		p.branches = branches
		return nil
	}
}

// WithSSHRewrite rewrites https://github.com/ sources to git@github.com: when cloning.
func WithSSHRewrite(enabled bool) Option {
	return func(p *Pipeline) error {
		p.sshRewrite = enabled
		return nil
	}
}

// New creates a Pipeline with default steps, prune list and branches.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		runner:    NewExecRunner(0),
		pruneDirs: DefaultPruneDirs,
		branches:  DefaultBranches,
	}
	steps, err := ParseSteps(DefaultBuildSteps)
	if err != nil {
		return nil, err
	}
	p.steps = steps

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("invalid pipeline option: %w", err)
		}
	}
	return p, nil
}

// ParseSteps splits shell-quoted command strings into argument vectors.
func ParseSteps(steps []string) ([][]string, error) {
	parsed := make([][]string, 0, len(steps))
	for _, s := range steps {
		args, err := shellquote.Split(s)
		if err != nil {
			return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
				"invalid build step", err, map[string]any{"step": s})
		}
		if len(args) == 0 {
			continue
		}
		parsed = append(parsed, args)
	}
	return parsed, nil
}

// Fresh materializes a new unit in dir: clone, resolve version, build, prune.
func (p *Pipeline) Fresh(ctx context.Context, sourceURL, dir string) (VersionInfo, error) {
	if err := p.Clone(ctx, sourceURL, dir); err != nil {
		return VersionInfo{}, err
	}
	return p.Rebuild(ctx, dir)
}

// Rebuild resolves version info, builds and prunes an existing working copy.
func (p *Pipeline) Rebuild(ctx context.Context, dir string) (VersionInfo, error) {
	info, err := p.ResolveVersion(ctx, dir)
	if err != nil {
		return VersionInfo{}, err
	}
	slog.Info("resolved unit revision", "dir", dir, "commit", short(info.Commit), "version", info.Version)

	if err := p.Build(ctx, dir); err != nil {
		return VersionInfo{}, err
	}
	if err := p.Prune(dir); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

// Build runs the configured build steps in dir. Every build gets a fresh
// plugin path: PluginPathVar is expanded to it, and a go build of a plugin
// that sets no plugin path has one added.
func (p *Pipeline) Build(ctx context.Context, dir string) error {
	pluginPath := newPluginPath(dir)
	for _, step := range p.steps {
		args := expandStep(step, pluginPath)
		if _, err := p.runner.Run(ctx, dir, args[0], args[1:]...); err != nil {
			return fmt.Errorf("build step %q: %w", strings.Join(step, " "), err)
		}
	}
	slog.Debug("unit built", "dir", dir, "steps", len(p.steps), "pluginpath", pluginPath)
	return nil
}

func newPluginPath(dir string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimLeft(filepath.Base(dir), "."))
	return "unit/" + name + "/" + uuid.NewString()
}

func expandStep(step []string, pluginPath string) []string {
	args := make([]string, len(step))
	expanded := false
	for i, a := range step {
		if strings.Contains(a, PluginPathVar) {
			a = strings.ReplaceAll(a, PluginPathVar, pluginPath)
			expanded = true
		}
		args[i] = a
	}
	if expanded || !isPluginBuild(args) {
		return args
	}

	for _, a := range args {
		if strings.Contains(a, "-pluginpath") {
			return args
		}
	}

	flag := "-pluginpath=" + pluginPath
	for i, a := range args {
		switch {
		case strings.HasPrefix(a, "-ldflags=") || strings.HasPrefix(a, "--ldflags="):
			args[i] = a + " " + flag
			return args
		case (a == "-ldflags" || a == "--ldflags") && i+1 < len(args):
			args[i+1] = args[i+1] + " " + flag
			return args
		}
	}
	// go build <flags>: the flag goes right after the subcommand
	return append([]string{args[0], args[1], "-ldflags=" + flag}, args[2:]...)
}

func isPluginBuild(args []string) bool {
	if len(args) < 2 || filepath.Base(args[0]) != "go" || args[1] != "build" {
		return false
	}
	for i, a := range args[2:] {
		if a == "-buildmode=plugin" || a == "--buildmode=plugin" {
			return true
		}
		if (a == "-buildmode" || a == "--buildmode") && i+3 < len(args) && args[i+3] == "plugin" {
			return true
		}
	}
	return false
}

// Prune removes non-artifact subtrees from dir. Missing entries are ignored.
func (p *Pipeline) Prune(dir string) error {
	for _, d := range p.pruneDirs {
		target := filepath.Join(dir, d)
		if err := os.RemoveAll(target); err != nil {
			return cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
				"prune failed", err, map[string]any{"path": target})
		}
	}
	return nil
}
