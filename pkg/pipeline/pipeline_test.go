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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/unithost/internal/testutil"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

const fakeBuild = `sh -c "mkdir -p dist && echo built > dist/unit.so"`

func newTestPipeline(t *testing.T, steps ...string) *Pipeline {
	t.Helper()
	if len(steps) == 0 {
		steps = []string{fakeBuild}
	}
	p, err := New(WithBuildSteps(steps...))
	require.NoError(t, err)
	return p
}

func TestNewDefaults(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	assert.Len(t, p.steps, len(DefaultBuildSteps))
	assert.Equal(t, []string{"go", "mod", "download"}, p.steps[0])
	assert.Equal(t, DefaultPruneDirs, p.pruneDirs)
	assert.Equal(t, DefaultBranches, p.branches)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(WithBuildSteps(`sh -c "unterminated`))
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))

	_, err = New(WithPruneDirs("/etc"))
	require.Error(t, err)

	_, err = New(WithPruneDirs("../outside"))
	require.Error(t, err)

	_, err = New(WithBranches())
	require.Error(t, err)

	_, err = New(WithRunner(nil))
	require.Error(t, err)
}

func TestParseStepsSkipsBlank(t *testing.T) {
	steps, err := ParseSteps([]string{"", "  ", "npm ci", `sh -c "a && b"`})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, []string{"npm", "ci"}, steps[0])
	assert.Equal(t, []string{"sh", "-c", "a && b"}, steps[1])
}

func TestCloneURLRewrite(t *testing.T) {
	p := newTestPipeline(t)
	assert.Equal(t, "https://github.com/acme/unit", p.cloneURL("https://github.com/acme/unit"))

	p.sshRewrite = true
	assert.Equal(t, "git@github.com:acme/unit.git", p.cloneURL("https://github.com/acme/unit"))
	assert.Equal(t, "git@github.com:acme/unit.git", p.cloneURL("https://github.com/acme/unit.git"))
	assert.Equal(t, "https://gitlab.com/acme/unit", p.cloneURL("https://gitlab.com/acme/unit"))
}

func TestFreshBuildsAndPrunes(t *testing.T) {
	src := testutil.NewSourceRepo(t, "sample-unit", map[string]string{
		"README.md":                "unit\n",
		"src/main.go":              "package main\n",
		".github/workflows/ci.yml": "on: push\n",
		"package.json":             `{"name":"sample-unit","version":"0.3.1"}`,
	})
	dst := filepath.Join(t.TempDir(), "work")

	p := newTestPipeline(t)
	info, err := p.Fresh(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, testutil.Head(t, src), info.Commit)
	assert.Equal(t, "0.3.1", info.Version)
	assert.True(t, testutil.Exists(filepath.Join(dst, "dist", "unit.so")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "src")))
	assert.False(t, testutil.Exists(filepath.Join(dst, ".github")))
	assert.True(t, IsWorkingCopy(dst))
}

func TestFreshCloneFailure(t *testing.T) {
	testutil.RequireGit(t)
	dst := filepath.Join(t.TempDir(), "work")

	p := newTestPipeline(t)
	_, err := p.Fresh(context.Background(), filepath.Join(t.TempDir(), "missing.git"), dst)
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeExternalProcess))
}

func TestBuildFailureIsExternalProcessError(t *testing.T) {
	src := testutil.NewSourceRepo(t, "broken", nil)
	dst := filepath.Join(t.TempDir(), "work")

	p := newTestPipeline(t, "false")
	_, err := p.Fresh(context.Background(), src, dst)
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeExternalProcess))
	assert.Contains(t, err.Error(), "build step")

	// no cleanup on failure
	assert.True(t, testutil.Exists(dst))
}

// recordingRunner captures build commands without running them.
type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, _, name string, args ...string) (string, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return "", nil
}

func TestBuildUsesFreshPluginPath(t *testing.T) {
	r := &recordingRunner{}
	p, err := New(WithRunner(r))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "sample-unit")
	require.NoError(t, p.Build(context.Background(), dir))
	require.NoError(t, p.Build(context.Background(), dir))
	require.Len(t, r.calls, 4)

	assert.Equal(t, []string{"go", "mod", "download"}, r.calls[0])
	first, second := r.calls[1], r.calls[3]
	assert.Equal(t, []string{"go", "build", "-buildmode=plugin"}, first[:3])
	assert.True(t, strings.HasPrefix(first[3], "-ldflags=-pluginpath=unit/sample-unit/"), first[3])
	assert.NotContains(t, first[3], PluginPathVar)
	assert.NotEqual(t, first[3], second[3])
}

func TestExpandStep(t *testing.T) {
	const pp = "unit/x/1"
	tests := []struct {
		name string
		step []string
		want []string
	}{
		{
			name: "placeholder",
			step: []string{"make", "PLUGINPATH=" + PluginPathVar},
			want: []string{"make", "PLUGINPATH=unit/x/1"},
		},
		{
			name: "plugin build without flags",
			step: []string{"go", "build", "-buildmode=plugin", "-o", "dist/unit.so", "."},
			want: []string{"go", "build", "-ldflags=-pluginpath=unit/x/1", "-buildmode=plugin", "-o", "dist/unit.so", "."},
		},
		{
			name: "existing ldflags",
			step: []string{"go", "build", "-buildmode", "plugin", "-ldflags=-s -w", "."},
			want: []string{"go", "build", "-buildmode", "plugin", "-ldflags=-s -w -pluginpath=unit/x/1", "."},
		},
		{
			name: "separate ldflags value",
			step: []string{"go", "build", "-ldflags", "-s", "-buildmode=plugin", "."},
			want: []string{"go", "build", "-ldflags", "-s -pluginpath=unit/x/1", "-buildmode=plugin", "."},
		},
		{
			name: "explicit pluginpath kept",
			step: []string{"go", "build", "-buildmode=plugin", "-ldflags=-pluginpath=fixed", "."},
			want: []string{"go", "build", "-buildmode=plugin", "-ldflags=-pluginpath=fixed", "."},
		},
		{
			name: "not a plugin build",
			step: []string{"go", "build", "-o", "bin/tool", "."},
			want: []string{"go", "build", "-o", "bin/tool", "."},
		},
		{
			name: "other command",
			step: []string{"npm", "ci"},
			want: []string{"npm", "ci"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := append([]string(nil), tt.step...)
			assert.Equal(t, tt.want, expandStep(step, pp))
			assert.Equal(t, tt.step, step, "configured step must not change")
		})
	}
}

func TestNewPluginPathSanitizesDirectory(t *testing.T) {
	pp := newPluginPath("/srv/units/.tmp-my unit-42")
	assert.True(t, strings.HasPrefix(pp, "unit/tmp-my_unit-42/"), pp)
	assert.NotContains(t, pp, " ")
}

func TestResolveVersion(t *testing.T) {
	src := testutil.NewSourceRepo(t, "versioned", map[string]string{
		"unit.yaml": "name: versioned\nversion: 2.0.0-rc1\n",
	})
	p := newTestPipeline(t)
	ctx := context.Background()

	info, err := p.ResolveVersion(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0-rc1", info.Version, "manifest fallback")

	testutil.Tag(t, src, "v1.0.0")
	info, err = p.ResolveVersion(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", info.Version, "exact tag")

	testutil.Commit(t, src, map[string]string{"CHANGELOG.md": "next\n"}, "after tag")
	info, err = p.ResolveVersion(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0+", info.Version, "nearest tag")
	assert.Equal(t, testutil.Head(t, src), info.Commit)
}

func TestResolveVersionAbsent(t *testing.T) {
	src := testutil.NewSourceRepo(t, "plain", nil)
	info, err := newTestPipeline(t).ResolveVersion(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, info.Version)
	assert.Len(t, info.Commit, 40)
}

func TestFetchRemoteHeadAndReset(t *testing.T) {
	src := testutil.NewSourceRepo(t, "moving", nil)
	dst := filepath.Join(t.TempDir(), "work")
	p := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Clone(ctx, src, dst))
	old, err := p.Head(ctx, dst)
	require.NoError(t, err)

	newRev := testutil.Commit(t, src, map[string]string{"b.txt": "b\n"}, "second")
	require.NoError(t, p.Fetch(ctx, dst))

	remote, err := p.RemoteHead(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, newRev, remote)

	require.NoError(t, p.Reset(ctx, dst, remote))
	head, err := p.Head(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, newRev, head)

	require.NoError(t, p.Reset(ctx, dst, old))
	head, err = p.Head(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, old, head)

	url, err := p.RemoteURL(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, src, url)
}

func TestRemoteHeadFallsBackToMaster(t *testing.T) {
	src := testutil.NewSourceRepo(t, "legacy", nil)
	testutil.Git(t, src, "branch", "-m", "main", "master")
	dst := filepath.Join(t.TempDir(), "work")
	p := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Clone(ctx, src, dst))
	rev, err := p.RemoteHead(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, testutil.Head(t, src), rev)

	p.branches = []string{"trunk"}
	_, err = p.RemoteHead(ctx, dst)
	require.Error(t, err)
}

func TestPruneIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "server", "x"), 0o755))
	p := newTestPipeline(t)
	require.NoError(t, p.Prune(dir))
	assert.False(t, testutil.Exists(filepath.Join(dir, "server")))
}

func TestExecRunner(t *testing.T) {
	r := NewExecRunner(0)
	ctx := context.Background()

	out, err := r.Run(ctx, "", "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = r.Run(ctx, "", "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeExternalProcess))
	se := cnserrors.Root(err)
	require.NotNil(t, se)
	assert.Equal(t, 3, se.Context["exitCode"])
	assert.Equal(t, "boom", se.Context["output"])

	_, err = r.Run(ctx, "", "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeExternalProcess))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Run(cancelled, "", "sh", "-c", "true")
	assert.ErrorIs(t, err, context.Canceled)
}
