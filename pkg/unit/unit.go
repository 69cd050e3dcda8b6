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

package unit

import (
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

// Handler is the capability every installed unit exposes. The dispatcher
// forwards GET-style requests to ServeGet and POST-style requests to ServePost.
type Handler interface {
	ServeGet(w http.ResponseWriter, r *http.Request)
	ServePost(w http.ResponseWriter, r *http.Request)
}

// Metadata describes an installed unit.
type Metadata struct {
	Name        string    `json:"name" yaml:"name"`
	SourceURL   string    `json:"sourceUrl" yaml:"sourceUrl"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	Commit      string    `json:"commit" yaml:"commit"`
	InstalledAt time.Time `json:"installedAt" yaml:"installedAt"`
	Directory   string    `json:"directory" yaml:"directory"`
}

// IdentifierFromSource derives a unit identifier from the trailing path
// segment of a repository URL, dropping a ".git" suffix.
//
//	https://github.com/acme/sample-unit.git -> sample-unit
//	git@github.com:acme/sample-unit         -> sample-unit
func IdentifierFromSource(sourceURL string) (string, error) {
	s := strings.TrimSpace(sourceURL)
	if s == "" {
		return "", cnserrors.New(cnserrors.ErrCodeInvalidRequest, "source URL is required")
	}
	s = strings.TrimRight(s, "/")
	// scp-like syntax has no slash before the repository path
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".git")
	if err := ValidateIdentifier(s); err != nil {
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"cannot derive unit name from source URL", err,
			map[string]any{"sourceUrl": sourceURL})
	}
	return s, nil
}

// ReservedIdentifiers are the first path segments served by the host itself.
var ReservedIdentifiers = []string{"api", "health", "ready", "metrics"}

// ValidateIdentifier checks that id can be used both as a route segment and
// as a single directory name under the managed root.
func ValidateIdentifier(id string) error {
	switch {
	case id == "":
		return cnserrors.New(cnserrors.ErrCodeInvalidRequest, "unit name is empty")
	case slices.Contains(ReservedIdentifiers, strings.ToLower(id)):
		return cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"unit name is reserved", map[string]any{"name": id, "reserved": ReservedIdentifiers})
	case strings.HasPrefix(id, "."):
		// reserved for temporary and backup directories
		return cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"unit name must not start with '.'", map[string]any{"name": id})
	case strings.ContainsAny(id, `/\`) || path.Clean(id) != id:
		return cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"unit name must be a single path segment", map[string]any{"name": id})
	}
	return nil
}
