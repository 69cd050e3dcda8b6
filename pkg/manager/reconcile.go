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
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/NVIDIA/unithost/pkg/envfile"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/pipeline"
	"github.com/NVIDIA/unithost/pkg/unit"
)

// ReconcileReport summarizes what startup reconciliation did.
type ReconcileReport struct {
	Loaded   []string `json:"loaded" yaml:"loaded"`
	Restored []string `json:"restored,omitempty" yaml:"restored,omitempty"`
	Purged   []string `json:"purged,omitempty" yaml:"purged,omitempty"`
}

// Reconcile rebuilds the registry from the managed root. Staging directories
// left by an interrupted install are purged, or restored when they hold the
// only copy of a unit. Every remaining unit directory is loaded; directories
// that fail to load are deleted.
func (m *Manager) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to read unit root directory", err, map[string]any{"root": m.root})
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(m.root, name)
		switch {
		case strings.HasPrefix(name, tmpPrefix):
			m.purge(ctx, path, report)
		case strings.HasPrefix(name, bakPrefix):
			id := backupID(name)
			live := m.unitDir(id)
			if id == "" || exists(live) {
				m.purge(ctx, path, report)
				continue
			}
			if err := os.Rename(path, live); err != nil {
				slog.Error("failed to restore interrupted install", "backup", path, "error", err)
				m.purge(ctx, path, report)
				continue
			}
			slog.Warn("restored unit from interrupted install", "unit", id)
			report.Restored = append(report.Restored, id)
		}
	}

	entries, err = os.ReadDir(m.root)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to read unit root directory", err, map[string]any{"root": m.root})
	}

	for _, e := range entries {
		id := e.Name()
		if !e.IsDir() || strings.HasPrefix(id, ".") {
			continue
		}
		if err := unit.ValidateIdentifier(id); err != nil {
			slog.Warn("skipping directory with invalid unit name", "name", id, "error", err)
			continue
		}

		if err := m.loadExisting(ctx, id); err != nil {
			slog.Error("failed to load unit, removing it", "unit", id, "error", err)
			m.purge(ctx, m.unitDir(id), report)
			continue
		}
		report.Loaded = append(report.Loaded, id)
	}

	unitsRegistered.Set(float64(m.registry.Count()))
	slog.Info("units reconciled",
		"loaded", len(report.Loaded),
		"restored", len(report.Restored),
		"purged", len(report.Purged))
	return report, nil
}

func (m *Manager) loadExisting(ctx context.Context, id string) error {
	dir := m.unitDir(id)

	meta, err := m.describe(ctx, id, dir)
	if err != nil {
		return err
	}

	if _, err := envfile.Apply(filepath.Join(dir, envfile.FileName)); err != nil {
		return err
	}

	h, err := m.loader.Load(ctx, dir)
	if err != nil {
		return err
	}

	m.registry.Put(id, h, dir, meta)
	slog.Debug("unit loaded", "unit", id)
	return nil
}

// describe returns the stored metadata record, or derives one from the
// working copy when the record is missing. A directory with neither is not
// a unit.
func (m *Manager) describe(ctx context.Context, id, dir string) (unit.Metadata, error) {
	if meta, ok := readSidecar(dir); ok && meta.Name == id && meta.Commit != "" {
		meta.Directory = dir
		return meta, nil
	}

	if !pipeline.IsWorkingCopy(dir) {
		return unit.Metadata{}, cnserrors.NewWithContext(cnserrors.ErrCodeLoadFailed,
			"unit directory has no metadata and is not a git working copy",
			map[string]any{"unit": id, "directory": dir})
	}

	info, err := m.pipeline.ResolveVersion(ctx, dir)
	if err != nil {
		return unit.Metadata{}, err
	}
	if info.Commit == "" {
		return unit.Metadata{}, cnserrors.NewWithContext(cnserrors.ErrCodeLoadFailed,
			"unit working copy has no resolvable commit", map[string]any{"unit": id, "directory": dir})
	}

	meta := unit.Metadata{Name: id, Directory: dir, Commit: info.Commit, Version: info.Version}
	if fi, err := os.Stat(dir); err == nil {
		meta.InstalledAt = fi.ModTime().UTC()
	}
	if url, err := m.pipeline.RemoteURL(ctx, dir); err == nil {
		meta.SourceURL = url
	}

	if err := writeSidecar(dir, meta); err != nil {
		slog.Debug("failed to write derived metadata", "unit", id, "error", err)
	}
	return meta, nil
}

func (m *Manager) purge(ctx context.Context, path string, report *ReconcileReport) {
	if err := m.deleteDir(ctx, path); err != nil {
		slog.Error("failed to purge directory", "path", path, "error", err)
		return
	}
	report.Purged = append(report.Purged, filepath.Base(path))
}

// backupID extracts the unit identifier from a .bak-<id>-<uuid> name.
func backupID(name string) string {
	rest := strings.TrimPrefix(name, bakPrefix)
	const suffix = 37 // "-" + uuid
	if len(rest) <= suffix || rest[len(rest)-suffix] != '-' {
		return ""
	}
	if _, err := uuid.Parse(rest[len(rest)-suffix+1:]); err != nil {
		return ""
	}
	id := rest[:len(rest)-suffix]
	if unit.ValidateIdentifier(id) != nil {
		return ""
	}
	return id
}
