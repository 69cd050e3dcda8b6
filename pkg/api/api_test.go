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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/unithost/internal/testutil"
	"github.com/NVIDIA/unithost/pkg/config"
	"github.com/NVIDIA/unithost/pkg/dispatch"
	"github.com/NVIDIA/unithost/pkg/manager"
	"github.com/NVIDIA/unithost/pkg/pipeline"
	"github.com/NVIDIA/unithost/pkg/registry"
	"github.com/NVIDIA/unithost/pkg/server"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RateLimit: 1000, RateLimitBurst: 1000},
	}
}

type apiFixture struct {
	srv  *httptest.Server
	mgr  *manager.Manager
	root string
}

func newAPIFixture(t *testing.T, steps ...string) *apiFixture {
	t.Helper()
	testutil.RequireGit(t)

	if len(steps) == 0 {
		steps = []string{testutil.BuildStep}
	}
	p, err := pipeline.New(pipeline.WithBuildSteps(steps...))
	require.NoError(t, err)

	reg := registry.New()
	disp := dispatch.New(reg)
	root := filepath.Join(t.TempDir(), "units")

	m, err := manager.New(root,
		manager.WithPipeline(p),
		manager.WithLoader(testutil.EchoLoader()),
		manager.WithRegistry(reg),
		manager.WithChangeHook(disp.Invalidate),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(testConfig(), m, disp).Handler())
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, mgr: m, root: root}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) server.ErrorResponse {
	t.Helper()
	var e server.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &e), string(data))
	return e
}

func TestLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	repo := testutil.NewSourceRepo(t, "sample-unit", nil)

	resp, data := f.do(t, http.MethodPost, "/api/units/install", InstallRequest{SourceURL: repo})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var installed InstallResponse
	require.NoError(t, json.Unmarshal(data, &installed))
	assert.Equal(t, "sample-unit", installed.Name)

	resp, data = f.do(t, http.MethodGet, "/api/units", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Units, 1)
	assert.Equal(t, "sample-unit", list.Units[0].Name)
	assert.Equal(t, testutil.Head(t, repo), list.Units[0].Commit)

	resp, data = f.do(t, http.MethodGet, "/sample-unit/hello", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sample-unit /hello", string(data))

	resp, data = f.do(t, http.MethodPost, "/sample-unit/echo", map[string]string{"ping": "pong"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"ping":"pong"}`, string(data))

	resp, data = f.do(t, http.MethodPut, "/api/units/sample-unit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var updated SuccessResponse
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.True(t, updated.Success)
	require.NotNil(t, updated.Metadata)
	assert.Equal(t, list.Units[0].Commit, updated.Metadata.Commit)

	resp, data = f.do(t, http.MethodDelete, "/api/units/sample-unit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.JSONEq(t, `{"success":true}`, string(data))
	assert.False(t, testutil.Exists(filepath.Join(f.root, "sample-unit")))

	resp, data = f.do(t, http.MethodGet, "/api/units", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"units":[]}`, string(data))

	resp, data = f.do(t, http.MethodGet, "/sample-unit/hello", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, data).Code)
}

func TestInstallAcceptsGithubURLAlias(t *testing.T) {
	f := newAPIFixture(t)
	repo := testutil.NewSourceRepo(t, "alias-unit", nil)

	resp, data := f.do(t, http.MethodPost, "/api/units/install", InstallRequest{GithubURL: repo})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.JSONEq(t, `{"name":"alias-unit"}`, string(data))
}

func TestInstallRejectsBadRequests(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", "{"},
		{"missing url", "{}"},
		{"blank url", `{"sourceUrl":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.srv.Client().Post(f.srv.URL+"/api/units/install", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			e := decodeError(t, data)
			assert.Equal(t, "INVALID_REQUEST", e.Code)
			assert.False(t, e.Retryable)
		})
	}
}

func TestInstallBuildFailureReportsProcessOutput(t *testing.T) {
	f := newAPIFixture(t, `sh -c "echo missing build script >&2; exit 3"`)
	repo := testutil.NewSourceRepo(t, "broken-unit", nil)

	resp, data := f.do(t, http.MethodPost, "/api/units/install", InstallRequest{SourceURL: repo})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, string(data))

	e := decodeError(t, data)
	assert.Equal(t, "EXTERNAL_PROCESS", e.Code)
	assert.Equal(t, "install failed", e.Message)
	assert.True(t, e.Retryable)
	assert.Equal(t, "broken-unit", e.Details["unit"])
	assert.Contains(t, e.Details["output"], "missing build script")

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed install must leave no trace")
}

func TestUnknownUnitReturnsNotFound(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"update", http.MethodPut, "/api/units/ghost", nil},
		{"uninstall", http.MethodDelete, "/api/units/ghost", nil},
		{"get env", http.MethodGet, "/api/units/ghost/env", nil},
		{"set env", http.MethodPost, "/api/units/ghost/env", EnvBody{Env: map[string]string{"A": "1"}}},
		{"dispatch", http.MethodGet, "/ghost/anything", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(data))
			assert.Equal(t, "NOT_FOUND", decodeError(t, data).Code)
		})
	}
}

func TestEnvRoundTripOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	repo := testutil.NewSourceRepo(t, "env-unit", nil)

	resp, data := f.do(t, http.MethodPost, "/api/units/install", InstallRequest{SourceURL: repo})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	const key = "UNITHOST_API_TEST_GREETING"
	t.Cleanup(func() { os.Unsetenv(key) })

	env := map[string]string{key: "hello\nworld", "EMPTY": ""}
	t.Cleanup(func() { os.Unsetenv("EMPTY") })

	resp, data = f.do(t, http.MethodPost, "/api/units/env-unit/env", EnvBody{Env: env})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.JSONEq(t, `{"success":true}`, string(data))
	assert.Equal(t, "hello\nworld", os.Getenv(key))

	resp, data = f.do(t, http.MethodGet, "/api/units/env-unit/env", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got EnvBody
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, env, got.Env)

	resp, data = f.do(t, http.MethodPost, "/api/units/env-unit/env", EnvBody{Env: map[string]string{"1BAD": "x"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
}

func TestManagementRoutesRejectOtherMethods(t *testing.T) {
	f := newAPIFixture(t)

	resp, data := f.do(t, http.MethodPatch, "/api/units/sample-unit", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, data).Code)
}

func TestNewManagerFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Root = filepath.Join(t.TempDir(), "units")
	cfg.Build.Steps = []string{testutil.BuildStep}
	cfg.Build.Prune = []string{"docs"}
	cfg.Git.Branches = []string{"main"}
	cfg.Plugin.Artifact = "dist/unit.so"
	cfg.Plugin.Symbol = "New"
	cfg.Restart.Enabled = false

	reg := registry.New()
	m, err := NewManager(cfg, reg, dispatch.New(reg))
	require.NoError(t, err)
	assert.True(t, testutil.Exists(cfg.Root))
	assert.Same(t, reg, m.Registry())

	cfg.Build.Steps = []string{`sh -c "unterminated`}
	_, err = NewManager(cfg, reg, dispatch.New(reg))
	assert.Error(t, err)
}

func TestListResponseTable(t *testing.T) {
	l := ListResponse{}
	assert.Equal(t, []string{"NAME", "VERSION", "COMMIT", "INSTALLED", "SOURCE"}, l.Header())
	assert.Empty(t, l.Rows())

	e := EnvBody{Env: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, [][]string{{"A", "1"}, {"B", "2"}}, e.Rows())
}
