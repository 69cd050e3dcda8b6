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

package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"

	"github.com/google/uuid"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/unit"
)

const (
	// DefaultArtifact is the plugin path relative to the unit directory.
	DefaultArtifact = "dist/unit.so"

	// DefaultSymbol is the constructor every unit plugin exports.
	DefaultSymbol = "New"
)

// Loader turns a built unit directory into a live handler.
type Loader interface {
	Load(ctx context.Context, dir string) (unit.Handler, error)
}

// Func adapts a function to the Loader interface.
type Func func(ctx context.Context, dir string) (unit.Handler, error)

// Load calls f.
func (f Func) Load(ctx context.Context, dir string) (unit.Handler, error) {
	return f(ctx, dir)
}

// PluginLoader loads units built with -buildmode=plugin.
//
// Every load opens a uniquely named copy of the artifact, so a rebuild never
// maps over a file that is still in use. The runtime also refuses a second
// plugin with an already loaded plugin path; pipeline.Build gives each build
// its own path so that a rebuilt unit yields a new handler.
type PluginLoader struct {
	Artifact string
	Symbol   string
	CacheDir string
}

// NewPluginLoader returns a loader using the default artifact and symbol.
// An empty cacheDir selects a directory under os.TempDir.
func NewPluginLoader(cacheDir string) *PluginLoader {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "unithost-plugins")
	}
	return &PluginLoader{
		Artifact: DefaultArtifact,
		Symbol:   DefaultSymbol,
		CacheDir: cacheDir,
	}
}

// Load opens the unit artifact under dir and constructs its handler.
func (l *PluginLoader) Load(ctx context.Context, dir string) (unit.Handler, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := filepath.Join(dir, l.Artifact)
	if _, err := os.Stat(src); err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeLoadFailed,
			"unit artifact not found", err, map[string]any{"artifact": src})
	}

	copyPath, err := l.stage(src, filepath.Base(dir))
	if err != nil {
		return nil, err
	}
	// the mapping survives removal of the file
	defer func() {
		if err := os.Remove(copyPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove staged plugin", "path", copyPath, "error", err)
		}
	}()

	p, err := plugin.Open(copyPath)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeLoadFailed,
			"failed to open unit plugin", err, map[string]any{"artifact": src})
	}

	sym, err := p.Lookup(l.Symbol)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeLoadFailed,
			fmt.Sprintf("unit plugin does not export %s", l.Symbol), err,
			map[string]any{"artifact": src})
	}

	h, err := Construct(sym)
	if err != nil {
		return nil, err
	}
	slog.Debug("unit plugin loaded", "artifact", src)
	return h, nil
}

// stage copies src to a unique file in the cache directory.
func (l *PluginLoader) stage(src, name string) (string, error) {
	if err := os.MkdirAll(l.CacheDir, 0o755); err != nil {
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to create plugin cache directory", err, map[string]any{"path": l.CacheDir})
	}

	dst := filepath.Join(l.CacheDir, fmt.Sprintf("%s-%s.so", name, uuid.NewString()))
	in, err := os.Open(src)
	if err != nil {
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeLoadFailed,
			"failed to read unit artifact", err, map[string]any{"artifact": src})
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o755)
	if err != nil {
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to stage unit artifact", err, map[string]any{"path": dst})
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to stage unit artifact", err, map[string]any{"path": dst})
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to stage unit artifact", err, map[string]any{"path": dst})
	}
	return dst, nil
}

// Construct calls an exported constructor and checks the result implements
// unit.Handler. Accepted constructor shapes are func() any and
// func() unit.Handler.
func Construct(sym any) (unit.Handler, error) {
	var v any
	switch fn := sym.(type) {
	case func() any:
		v = fn()
	case func() unit.Handler:
		v = fn()
	default:
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodeLoadFailed,
			"unit constructor has unsupported signature",
			map[string]any{"type": fmt.Sprintf("%T", sym)})
	}
	return Adapt(v)
}

// Adapt checks that v exposes the unit contract.
func Adapt(v any) (unit.Handler, error) {
	if v == nil {
		return nil, cnserrors.New(cnserrors.ErrCodeLoadFailed, "unit constructor returned nil")
	}
	h, ok := v.(unit.Handler)
	if !ok {
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodeLoadFailed,
			"unit does not implement ServeGet and ServePost",
			map[string]any{"type": fmt.Sprintf("%T", v)})
	}
	return h, nil
}
