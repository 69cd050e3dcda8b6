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

package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/NVIDIA/unithost/pkg/defaults"
	"github.com/NVIDIA/unithost/pkg/envfile"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/loader"
	"github.com/NVIDIA/unithost/pkg/pipeline"
	"github.com/NVIDIA/unithost/pkg/registry"
	"github.com/NVIDIA/unithost/pkg/restart"
	"github.com/NVIDIA/unithost/pkg/unit"
)

const (
	tmpPrefix = ".tmp-"
	bakPrefix = ".bak-"
)

// Manager installs, updates and uninstalls units under a single root
// directory and keeps the registry consistent with what is on disk.
type Manager struct {
	root        string
	pipeline    *pipeline.Pipeline
	loader      loader.Loader
	registry    *registry.Registry
	restarter   restart.Restarter
	runner      pipeline.Runner
	removeAll   func(string) error
	lockTimeout time.Duration
	hooks       []func(id string)
	now         func() time.Time
	locks       *keyedLocks
}

// Option configures a Manager.
type Option func(*Manager)

// WithPipeline sets the build pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(m *Manager) {
		m.pipeline = p
	}
}

// WithLoader sets the unit loader.
func WithLoader(l loader.Loader) Option {
	return func(m *Manager) {
		m.loader = l
	}
}

// WithRegistry sets the registry shared with the dispatcher.
func WithRegistry(r *registry.Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithRestarter sets what is signalled after a successful mutation.
func WithRestarter(r restart.Restarter) Option {
	return func(m *Manager) {
		m.restarter = r
	}
}

// WithRunner sets the runner used for the fallback delete commands.
func WithRunner(r pipeline.Runner) Option {
	return func(m *Manager) {
		m.runner = r
	}
}

// WithLockTimeout bounds how long an operation waits for the unit lock.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.lockTimeout = d
	}
}

// WithChangeHook registers fn to run after a unit's handler is replaced or
// removed.
func WithChangeHook(fn func(id string)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.hooks = append(m.hooks, fn)
		}
	}
}

// New returns a Manager for root. The directory is created if missing.
func New(root string, opts ...Option) (*Manager, error) {
	if root == "" {
		return nil, cnserrors.New(cnserrors.ErrCodeInvalidRequest, "unit root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"invalid unit root directory", err, map[string]any{"root": root})
	}

	m := &Manager{
		root:        abs,
		loader:      loader.NewPluginLoader(""),
		registry:    registry.New(),
		restarter:   restart.Noop{},
		runner:      pipeline.NewExecRunner(defaults.BuildStepTimeout),
		removeAll:   os.RemoveAll,
		lockTimeout: defaults.LockAcquireTimeout,
		now:         time.Now,
		locks:       newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.pipeline == nil {
		p, err := pipeline.New()
		if err != nil {
			return nil, err
		}
		m.pipeline = p
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to create unit root directory", err, map[string]any{"root": m.root})
	}
	return m, nil
}

// Root returns the absolute managed root directory.
func (m *Manager) Root() string {
	return m.root
}

// Registry returns the registry the manager mutates.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// List returns metadata of all registered units ordered by name.
func (m *Manager) List() []unit.Metadata {
	return m.registry.List()
}

// Get returns the metadata of a registered unit.
func (m *Manager) Get(id string) (unit.Metadata, error) {
	e, ok := m.registry.Get(id)
	if !ok {
		return unit.Metadata{}, notFound(id)
	}
	return e.Metadata, nil
}

// Install clones, builds and registers the unit at sourceURL and returns its
// identifier. An already installed unit with the same identifier is replaced
// only after the new build has loaded; on any failure the previous install is
// left in place and the registry is not touched.
func (m *Manager) Install(ctx context.Context, sourceURL string) (string, error) {
	id, err := unit.IdentifierFromSource(sourceURL)
	if err != nil {
		return "", wrapOp(opInstall, "", err)
	}

	release, err := m.locks.acquire(ctx, id, m.lockTimeout)
	if err != nil {
		return "", wrapOp(opInstall, id, err)
	}
	defer release()

	start := time.Now()
	slog.Info("installing unit", "unit", id, "source", sourceURL)

	err = m.install(ctx, id, sourceURL)
	observe(opInstall, start, err)
	if err != nil {
		slog.Error("unit install failed", "unit", id, "error", err)
		return "", wrapOp(opInstall, id, err)
	}

	slog.Info("unit installed", "unit", id, "duration", time.Since(start).String())
	m.changed(id, opInstall)
	return id, nil
}

func (m *Manager) install(ctx context.Context, id, sourceURL string) error {
	live := m.unitDir(id)
	tmp := filepath.Join(m.root, tmpPrefix+id+"-"+uuid.NewString())

	info, err := m.pipeline.Fresh(ctx, sourceURL, tmp)
	if err != nil {
		m.discard(opInstall, tmp)
		return err
	}

	// keep unit configuration across reinstall
	if err := carryEnv(live, tmp); err != nil {
		slog.Warn("failed to carry env file into new build", "unit", id, "error", err)
	}

	backup := ""
	if exists(live) {
		backup = filepath.Join(m.root, bakPrefix+id+"-"+uuid.NewString())
		if err := os.Rename(live, backup); err != nil {
			m.discard(opInstall, tmp)
			return cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
				"failed to move existing install aside", err, map[string]any{"path": live})
		}
	}

	if err := os.Rename(tmp, live); err != nil {
		m.discard(opInstall, tmp)
		m.restoreBackup(backup, live)
		return cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to move build into place", err, map[string]any{"path": live})
	}

	h, err := m.loader.Load(ctx, live)
	if err != nil {
		m.discard(opInstall, live)
		m.restoreBackup(backup, live)
		return err
	}

	meta := unit.Metadata{
		Name:        id,
		SourceURL:   sourceURL,
		Version:     info.Version,
		Commit:      info.Commit,
		InstalledAt: m.now().UTC(),
		Directory:   live,
	}
	if err := writeSidecar(live, meta); err != nil {
		slog.Warn("failed to write unit metadata", "unit", id, "error", err)
	}

	m.registry.Put(id, h, live, meta)
	unitsRegistered.Set(float64(m.registry.Count()))

	if backup != "" {
		if err := m.removeAll(backup); err != nil {
			slog.Warn("failed to remove backup", "path", backup, "error", err)
		}
	}
	return nil
}

// Update fetches the unit's source and, when the primary branch moved,
// rebuilds and reloads it in place. An unchanged source returns the existing
// metadata without rebuilding. A failure after the working copy was reset
// restores the previous revision.
func (m *Manager) Update(ctx context.Context, id string) (unit.Metadata, error) {
	if err := unit.ValidateIdentifier(id); err != nil {
		return unit.Metadata{}, wrapOp(opUpdate, id, err)
	}

	release, err := m.locks.acquire(ctx, id, m.lockTimeout)
	if err != nil {
		return unit.Metadata{}, wrapOp(opUpdate, id, err)
	}
	defer release()

	start := time.Now()
	meta, changed, err := m.update(ctx, id)
	observe(opUpdate, start, err)
	if err != nil {
		slog.Error("unit update failed", "unit", id, "error", err)
		return unit.Metadata{}, wrapOp(opUpdate, id, err)
	}
	if !changed {
		slog.Info("unit already up to date", "unit", id, "commit", meta.Commit)
		return meta, nil
	}

	slog.Info("unit updated", "unit", id, "commit", meta.Commit, "version", meta.Version,
		"duration", time.Since(start).String())
	m.changed(id, opUpdate)
	return meta, nil
}

func (m *Manager) update(ctx context.Context, id string) (unit.Metadata, bool, error) {
	entry, ok := m.registry.Get(id)
	if !ok {
		return unit.Metadata{}, false, notFound(id)
	}
	dir := entry.Directory
	if !pipeline.IsWorkingCopy(dir) {
		return unit.Metadata{}, false, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"unit directory is not a git working copy", map[string]any{"directory": dir})
	}

	old, err := m.pipeline.Head(ctx, dir)
	if err != nil {
		return unit.Metadata{}, false, err
	}
	if err := m.pipeline.Fetch(ctx, dir); err != nil {
		return unit.Metadata{}, false, err
	}
	remote, err := m.pipeline.RemoteHead(ctx, dir)
	if err != nil {
		return unit.Metadata{}, false, err
	}
	if remote == old {
		return entry.Metadata, false, nil
	}

	slog.Info("updating unit", "unit", id, "from", old, "to", remote)

	h, info, err := m.rebuild(ctx, dir, remote)
	if err != nil {
		m.rollback(ctx, id, dir, old)
		return unit.Metadata{}, false, err
	}

	meta := entry.Metadata
	meta.Commit = info.Commit
	meta.Version = info.Version
	meta.InstalledAt = m.now().UTC()
	meta.Directory = dir

	m.registry.Put(id, h, dir, meta)
	if err := writeSidecar(dir, meta); err != nil {
		slog.Warn("failed to write unit metadata", "unit", id, "error", err)
	}
	return meta, true, nil
}

func (m *Manager) rebuild(ctx context.Context, dir, rev string) (unit.Handler, pipeline.VersionInfo, error) {
	if err := m.pipeline.Reset(ctx, dir, rev); err != nil {
		return nil, pipeline.VersionInfo{}, err
	}
	info, err := m.pipeline.Rebuild(ctx, dir)
	if err != nil {
		return nil, pipeline.VersionInfo{}, err
	}
	h, err := m.loader.Load(ctx, dir)
	if err != nil {
		return nil, pipeline.VersionInfo{}, err
	}
	return h, info, nil
}

// rollback returns the working copy to rev and rebuilds it so the artifact on
// disk matches the handler that stays registered.
func (m *Manager) rollback(ctx context.Context, id, dir, rev string) {
	compensations.WithLabelValues(opUpdate, "reset").Inc()
	ctx = context.WithoutCancel(ctx)

	if err := m.pipeline.Reset(ctx, dir, rev); err != nil {
		slog.Error("failed to roll back unit", "unit", id, "revision", rev, "error", err)
		return
	}
	if _, err := m.pipeline.Rebuild(ctx, dir); err != nil {
		slog.Error("failed to rebuild rolled back unit", "unit", id, "revision", rev, "error", err)
		return
	}
	slog.Warn("unit rolled back", "unit", id, "revision", rev)
}

// Uninstall unregisters the unit and deletes its directory. If the directory
// cannot be deleted the unit is registered again exactly as it was.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	if err := unit.ValidateIdentifier(id); err != nil {
		return wrapOp(opUninstall, id, err)
	}

	release, err := m.locks.acquire(ctx, id, m.lockTimeout)
	if err != nil {
		return wrapOp(opUninstall, id, err)
	}
	defer release()

	start := time.Now()
	err = m.uninstall(ctx, id)
	observe(opUninstall, start, err)
	if err != nil {
		slog.Error("unit uninstall failed", "unit", id, "error", err)
		return wrapOp(opUninstall, id, err)
	}

	slog.Info("unit uninstalled", "unit", id)
	m.changed(id, opUninstall)
	return nil
}

func (m *Manager) uninstall(ctx context.Context, id string) error {
	entry, ok := m.registry.Remove(id)
	if !ok {
		return notFound(id)
	}
	unitsRegistered.Set(float64(m.registry.Count()))

	if err := m.deleteDir(ctx, entry.Directory); err != nil {
		compensations.WithLabelValues(opUninstall, "restore").Inc()
		m.registry.Restore(id, entry)
		unitsRegistered.Set(float64(m.registry.Count()))
		slog.Warn("unit registration restored", "unit", id)
		return err
	}
	return nil
}

// deleteDir removes dir, falling back to external commands for trees the
// process cannot remove on its own (read-only files from package managers).
func (m *Manager) deleteDir(ctx context.Context, dir string) error {
	if !exists(dir) {
		return nil
	}

	if err := m.removeAll(dir); err != nil {
		slog.Warn("remove failed, retrying with external commands", "path", dir, "error", err)
	}
	if !exists(dir) {
		return nil
	}

	if _, err := m.runner.Run(ctx, "", "chmod", "-R", "755", dir); err != nil {
		slog.Warn("chmod failed", "path", dir, "error", err)
	}
	if _, err := m.runner.Run(ctx, "", "rm", "-rf", dir); err != nil {
		slog.Warn("rm failed", "path", dir, "error", err)
	}
	if exists(dir) {
		return cnserrors.NewWithContext(cnserrors.ErrCodeFilesystem,
			"unit directory could not be deleted", map[string]any{"directory": dir})
	}
	return nil
}

// Env returns the unit's environment file as a map.
func (m *Manager) Env(id string) (map[string]string, error) {
	e, ok := m.registry.Get(id)
	if !ok {
		return nil, notFound(id)
	}
	return envfile.Read(filepath.Join(e.Directory, envfile.FileName))
}

// SetEnv replaces the unit's environment file and applies it to the process.
func (m *Manager) SetEnv(ctx context.Context, id string, env map[string]string) error {
	release, err := m.locks.acquire(ctx, id, m.lockTimeout)
	if err != nil {
		return wrapOp(opEnv, id, err)
	}
	defer release()

	e, ok := m.registry.Get(id)
	if !ok {
		return wrapOp(opEnv, id, notFound(id))
	}

	path := filepath.Join(e.Directory, envfile.FileName)
	start := time.Now()
	if err := envfile.Write(path, env); err != nil {
		observe(opEnv, start, err)
		return wrapOp(opEnv, id, err)
	}
	_, err = envfile.Apply(path)
	observe(opEnv, start, err)
	if err != nil {
		return wrapOp(opEnv, id, err)
	}

	slog.Info("unit env updated", "unit", id, "count", len(env))
	m.restarter.Schedule("env " + id)
	return nil
}

func (m *Manager) changed(id, op string) {
	for _, fn := range m.hooks {
		fn(id)
	}
	m.restarter.Schedule(op + " " + id)
}

func (m *Manager) unitDir(id string) string {
	return filepath.Join(m.root, id)
}

func (m *Manager) discard(op, path string) {
	if !exists(path) {
		return
	}
	compensations.WithLabelValues(op, "discard").Inc()
	if err := m.removeAll(path); err != nil {
		slog.Error("failed to discard directory", "path", path, "error", err)
		return
	}
	slog.Debug("discarded directory", "path", path)
}

func (m *Manager) restoreBackup(backup, live string) {
	if backup == "" {
		return
	}
	compensations.WithLabelValues(opInstall, "restore").Inc()
	if err := os.Rename(backup, live); err != nil {
		slog.Error("failed to restore previous install", "backup", backup, "error", err)
		return
	}
	slog.Warn("previous install restored", "path", live)
}

func carryEnv(from, to string) error {
	src := filepath.Join(from, envfile.FileName)
	b, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(filepath.Join(to, envfile.FileName), b, 0o600)
}

func notFound(id string) error {
	return cnserrors.NewWithContext(cnserrors.ErrCodeNotFound,
		fmt.Sprintf("unit %q is not installed", id), map[string]any{"unit": id})
}

// wrapOp names the failed operation while keeping the cause's classification.
func wrapOp(op, id string, err error) error {
	code := cnserrors.CodeOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		code = cnserrors.ErrCodeTimeout
	}
	ctx := map[string]any{"operation": op}
	if id != "" {
		ctx["unit"] = id
	}
	return cnserrors.WrapWithContext(code, op+" failed", err, ctx)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
