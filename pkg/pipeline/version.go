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
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest files consulted, in order, when no tag describes HEAD.
const (
	PackageManifest = "package.json"
	UnitManifest    = "unit.yaml"
)

// VersionInfo is the revision data recorded in unit metadata.
type VersionInfo struct {
	// Commit is the resolved revision hash of HEAD.
	Commit string
	// Version is a best-effort human version; empty when none could be found.
	Version string
}

// ResolveVersion returns the HEAD revision of dir and a best-effort version:
// an exact tag, else the nearest tag suffixed with "+", else the version
// declared in a manifest. Missing tags are not an error.
func (p *Pipeline) ResolveVersion(ctx context.Context, dir string) (VersionInfo, error) {
	commit, err := p.Head(ctx, dir)
	if err != nil {
		return VersionInfo{}, err
	}
	info := VersionInfo{Commit: commit}

	if out, err := p.runner.Run(ctx, dir, gitBinary, "describe", "--tags", "--exact-match", "HEAD"); err == nil && strings.TrimSpace(out) != "" {
		info.Version = strings.TrimSpace(out)
		return info, nil
	}

	if out, err := p.runner.Run(ctx, dir, gitBinary, "describe", "--tags", "--abbrev=0"); err == nil && strings.TrimSpace(out) != "" {
		info.Version = strings.TrimSpace(out) + "+"
		return info, nil
	}

	info.Version = manifestVersion(dir)
	return info, nil
}

func manifestVersion(dir string) string {
	if b, err := os.ReadFile(filepath.Join(dir, PackageManifest)); err == nil {
		var pkg struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(b, &pkg); err != nil {
			slog.Debug("ignoring unreadable manifest", "file", PackageManifest, "error", err)
		} else if pkg.Version != "" {
			return pkg.Version
		}
	}

	if b, err := os.ReadFile(filepath.Join(dir, UnitManifest)); err == nil {
		var m struct {
			Version string `yaml:"version"`
		}
		if err := yaml.Unmarshal(b, &m); err != nil {
			slog.Debug("ignoring unreadable manifest", "file", UnitManifest, "error", err)
		} else if m.Version != "" {
			return m.Version
		}
	}

	return ""
}
