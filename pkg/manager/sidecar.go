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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/unithost/pkg/unit"
)

// SidecarFile holds the metadata record of an installed unit. It is untracked
// by git, so it survives in-place updates.
const SidecarFile = ".unit.yaml"

func writeSidecar(dir string, meta unit.Metadata) error {
	b, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarFile), b, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func readSidecar(dir string) (unit.Metadata, bool) {
	b, err := os.ReadFile(filepath.Join(dir, SidecarFile))
	if err != nil {
		return unit.Metadata{}, false
	}
	var meta unit.Metadata
	if err := yaml.Unmarshal(b, &meta); err != nil {
		return unit.Metadata{}, false
	}
	return meta, true
}
