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
	"os"
	"path/filepath"
	"strings"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

const gitBinary = "git"

// Clone clones sourceURL into dir. dir must not exist yet.
func (p *Pipeline) Clone(ctx context.Context, sourceURL, dir string) error {
	url := p.cloneURL(sourceURL)
	if _, err := p.runner.Run(ctx, "", gitBinary, "clone", "--", url, dir); err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

// cloneURL applies the optional https-to-ssh rewrite for GitHub sources.
func (p *Pipeline) cloneURL(sourceURL string) string {
	if !p.sshRewrite || !strings.HasPrefix(sourceURL, "https://github.com/") {
		return sourceURL
	}
	url := "git@github.com:" + strings.TrimPrefix(sourceURL, "https://github.com/")
	if !strings.HasSuffix(url, ".git") {
		url += ".git"
	}
	return url
}

// Head returns the resolved revision of HEAD in dir.
func (p *Pipeline) Head(ctx context.Context, dir string) (string, error) {
	return p.revParse(ctx, dir, "HEAD")
}

// Fetch updates remote-tracking refs for origin.
func (p *Pipeline) Fetch(ctx context.Context, dir string) error {
	if _, err := p.runner.Run(ctx, dir, gitBinary, "fetch", "--tags", "origin"); err != nil {
		return fmt.Errorf("fetch origin: %w", err)
	}
	return nil
}

// RemoteHead resolves the revision of the first configured primary branch
// that exists on origin.
func (p *Pipeline) RemoteHead(ctx context.Context, dir string) (string, error) {
	var lastErr error
	for _, b := range p.branches {
		rev, err := p.revParse(ctx, dir, "origin/"+b)
		if err == nil {
			return rev, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("no primary branch found on origin (tried %s): %w",
		strings.Join(p.branches, ", "), lastErr)
}

// Reset hard-resets the working copy in dir to rev.
func (p *Pipeline) Reset(ctx context.Context, dir, rev string) error {
	if _, err := p.runner.Run(ctx, dir, gitBinary, "reset", "--hard", rev); err != nil {
		return fmt.Errorf("reset to %s: %w", short(rev), err)
	}
	return nil
}

// RemoteURL returns the configured URL of origin.
func (p *Pipeline) RemoteURL(ctx context.Context, dir string) (string, error) {
	out, err := p.runner.Run(ctx, dir, gitBinary, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("remote url: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsWorkingCopy reports whether dir contains a git working copy.
func IsWorkingCopy(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

func (p *Pipeline) revParse(ctx context.Context, dir, ref string) (string, error) {
	out, err := p.runner.Run(ctx, dir, gitBinary, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("rev-parse %s: %w", ref, err)
	}
	rev := strings.TrimSpace(out)
	if rev == "" {
		return "", cnserrors.NewWithContext(cnserrors.ErrCodeExternalProcess,
			"rev-parse returned no revision", map[string]any{"ref": ref, "dir": dir})
	}
	return rev, nil
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
