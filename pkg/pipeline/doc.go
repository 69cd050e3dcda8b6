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

// Package pipeline implements the unit build pipeline as a sequence of
// external commands.
//
// A fresh unit goes through four steps:
//
//  1. Obtain source: git clone (or fetch and reset when updating in place)
//  2. Resolve version: HEAD revision, plus exact tag, nearest tag with a "+"
//     suffix, or the manifest version (package.json, then unit.yaml)
//  3. Build: the configured build steps, by default
//     "go mod download" and "go build -buildmode=plugin
//     -ldflags=-pluginpath={{pluginpath}} -o dist/unit.so ."; each build
//     expands {{pluginpath}} to a fresh plugin path
//  4. Prune: remove src, server and .github
//
// Any failing step aborts with an EXTERNAL_PROCESS (or FILESYSTEM) error.
// The pipeline never cleans up partial results.
//
// Build steps are shell-quoted strings split into argument vectors; they are
// not run through a shell:
//
//	p, err := pipeline.New(
//	    pipeline.WithBuildSteps("npm ci", "npm run build"),
//	    pipeline.WithPruneDirs("src"),
//	)
package pipeline
