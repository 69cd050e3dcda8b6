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
	"sort"
	"time"

	"github.com/NVIDIA/unithost/pkg/unit"
)

// InstallRequest is the body of POST /api/units/install. GithubURL is
// accepted as an alias for SourceURL.
type InstallRequest struct {
	SourceURL string `json:"sourceUrl,omitempty" yaml:"sourceUrl,omitempty"`
	GithubURL string `json:"githubUrl,omitempty" yaml:"githubUrl,omitempty"`
}

// Source returns the requested repository URL.
func (r InstallRequest) Source() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.GithubURL
}

// InstallResponse names the installed unit.
type InstallResponse struct {
	Name string `json:"name" yaml:"name"`
}

// SuccessResponse acknowledges uninstall, update and env writes. Update also
// returns the new metadata.
type SuccessResponse struct {
	Success  bool           `json:"success" yaml:"success"`
	Metadata *unit.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ListResponse is the body of GET /api/units.
type ListResponse struct {
	Units []unit.Metadata `json:"units" yaml:"units"`
}

// Header implements serializer.Tabular.
func (l ListResponse) Header() []string {
	return []string{"NAME", "VERSION", "COMMIT", "INSTALLED", "SOURCE"}
}

// Rows implements serializer.Tabular.
func (l ListResponse) Rows() [][]string {
	rows := make([][]string, 0, len(l.Units))
	for _, u := range l.Units {
		commit := u.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		version := u.Version
		if version == "" {
			version = "-"
		}
		rows = append(rows, []string{u.Name, version, commit, u.InstalledAt.UTC().Format(time.RFC3339), u.SourceURL})
	}
	return rows
}

// EnvBody carries a unit environment, both for reads and writes.
type EnvBody struct {
	Env map[string]string `json:"env" yaml:"env"`
}

// Header implements serializer.Tabular.
func (e EnvBody) Header() []string {
	return []string{"KEY", "VALUE"}
}

// Rows implements serializer.Tabular, sorted by key.
func (e EnvBody) Rows() [][]string {
	keys := make([]string, 0, len(e.Env))
	for k := range e.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, e.Env[k]})
	}
	return rows
}
