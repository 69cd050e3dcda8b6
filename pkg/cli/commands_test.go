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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/unithost/pkg/api"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/serializer"
	"github.com/NVIDIA/unithost/pkg/server"
	"github.com/NVIDIA/unithost/pkg/unit"
)

// fakeHost is an in-memory stand-in for the management API.
type fakeHost struct {
	mu      sync.Mutex
	env     map[string]string
	posted  map[string]string
	deleted []string
	fail    bool
}

func (f *fakeHost) metadata() unit.Metadata {
	return unit.Metadata{
		Name:        "sample-unit",
		SourceURL:   "https://example.com/acme/sample-unit.git",
		Version:     "v1.2.0",
		Commit:      "0123456789abcdef0123456789abcdef01234567",
		InstalledAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Directory:   "units/sample-unit",
	}
}

func (f *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		serializer.RespondJSON(w, http.StatusBadGateway, server.ErrorResponse{
			Code:    string(cnserrors.ErrCodeExternalProcess),
			Message: "build failed",
			Details: map[string]any{
				"command": "make build",
				"output":  "make: *** No rule to make target 'build'.\n",
			},
			RequestID: "req-1",
			Retryable: true,
		})
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "POST /api/units/install":
		var req api.InstallRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		name, _ := unit.IdentifierFromSource(req.Source())
		serializer.RespondJSON(w, http.StatusOK, api.InstallResponse{Name: name})
	case "GET /api/units":
		serializer.RespondJSON(w, http.StatusOK, api.ListResponse{Units: []unit.Metadata{f.metadata()}})
	case "PUT /api/units/sample-unit":
		md := f.metadata()
		serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true, Metadata: &md})
	case "DELETE /api/units/sample-unit":
		f.deleted = append(f.deleted, "sample-unit")
		serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	case "GET /api/units/sample-unit/env":
		serializer.RespondJSON(w, http.StatusOK, api.EnvBody{Env: f.env})
	case "POST /api/units/sample-unit/env":
		var body api.EnvBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.posted = body.Env
		serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	default:
		server.NotFound(w, r)
	}
}

func newFakeHost(t *testing.T) (*fakeHost, string) {
	t.Helper()
	f := &fakeHost{env: map[string]string{"A": "1", "B": "2"}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.Writer = &buf
	cmd.ErrWriter = &buf
	err := cmd.Run(context.Background(), append([]string{name}, args...))
	return buf.String(), err
}

func TestInstallCommand(t *testing.T) {
	_, url := newFakeHost(t)

	out, err := run(t, "--server", url, "install", "https://example.com/acme/sample-unit.git")
	require.NoError(t, err)
	assert.Contains(t, out, "installed sample-unit, serving at /sample-unit")
}

func TestInstallRequiresSingleArgument(t *testing.T) {
	_, url := newFakeHost(t)

	_, err := run(t, "--server", url, "install")
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))

	_, err = run(t, "--server", url, "install", "a", "b")
	require.Error(t, err)
}

func TestListCommand(t *testing.T) {
	_, url := newFakeHost(t)

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "--server", url, "list")
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "sample-unit")
		assert.Contains(t, out, "v1.2.0")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "--server", url, "list", "--format", "json")
		require.NoError(t, err)

		var resp api.ListResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Units, 1)
		assert.Equal(t, "sample-unit", resp.Units[0].Name)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "--server", url, "list", "--format", "xml")
		require.Error(t, err)
	})
}

func TestUpdateCommand(t *testing.T) {
	_, url := newFakeHost(t)

	out, err := run(t, "--server", url, "update", "sample-unit")
	require.NoError(t, err)
	assert.Contains(t, out, "updated sample-unit to v1.2.0 (0123456789ab)")
}

func TestUpdateCommandFormats(t *testing.T) {
	_, url := newFakeHost(t)

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "--server", url, "update", "--format", "table", "sample-unit")
		require.NoError(t, err)
		assert.Contains(t, out, "FIELD")
		assert.Contains(t, out, "commit")
		assert.Contains(t, out, "0123456789abcdef0123456789abcdef01234567")
		assert.Contains(t, out, "installedAt")
		assert.Contains(t, out, "2025-06-01T12:00:00Z")
		assert.NotContains(t, out, "updated sample-unit")
	})

	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "unit.json")
		_, err := run(t, "--server", url, "update", "--format", "json", "--output", path, "sample-unit")
		require.NoError(t, err)

		got, err := serializer.FromFile[unit.Metadata](path)
		require.NoError(t, err)
		assert.Equal(t, "v1.2.0", got.Version)
		assert.Equal(t, "units/sample-unit", got.Directory)
	})
}

func TestUninstallCommand(t *testing.T) {
	f, url := newFakeHost(t)

	out, err := run(t, "--server", url, "uninstall", "--yes", "sample-unit")
	require.NoError(t, err)
	assert.Contains(t, out, "uninstalled sample-unit")

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"sample-unit"}, f.deleted)
}

func TestEnvGetCommand(t *testing.T) {
	_, url := newFakeHost(t)
	path := filepath.Join(t.TempDir(), "env.yaml")

	_, err := run(t, "--server", url, "env", "get", "--format", "yaml", "--output", path, "sample-unit")
	require.NoError(t, err)

	got, err := serializer.FromFile[api.EnvBody](path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, got.Env)
}

func TestEnvSetCommand(t *testing.T) {
	t.Run("arguments replace", func(t *testing.T) {
		f, url := newFakeHost(t)

		out, err := run(t, "--server", url, "env", "set", "sample-unit", "GREETING=hello", "DSN=a=b")
		require.NoError(t, err)
		assert.Contains(t, out, "set 2 variable(s) for sample-unit")

		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, map[string]string{"GREETING": "hello", "DSN": "a=b"}, f.posted)
	})

	t.Run("merge with file", func(t *testing.T) {
		f, url := newFakeHost(t)
		path := filepath.Join(t.TempDir(), "vars.yaml")
		require.NoError(t, os.WriteFile(path, []byte("B: file\nC: file\n"), 0o600))

		_, err := run(t, "--server", url, "env", "set", "--merge", "--file", path, "sample-unit", "C=arg")
		require.NoError(t, err)

		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, map[string]string{"A": "1", "B": "file", "C": "arg"}, f.posted)
	})

	t.Run("body shaped file", func(t *testing.T) {
		f, url := newFakeHost(t)
		path := filepath.Join(t.TempDir(), "vars.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"env":{"X":"1"}}`), 0o600))

		_, err := run(t, "--server", url, "env", "set", "--file", path, "sample-unit")
		require.NoError(t, err)

		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, map[string]string{"X": "1"}, f.posted)
	})

	t.Run("bad assignment", func(t *testing.T) {
		_, url := newFakeHost(t)

		_, err := run(t, "--server", url, "env", "set", "sample-unit", "NOEQUALS")
		require.Error(t, err)
		assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))
	})
}

func TestServerFailureIsReported(t *testing.T) {
	f, url := newFakeHost(t)
	f.fail = true

	_, err := run(t, "--server", url, "install", "https://example.com/acme/sample-unit.git")
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeExternalProcess))

	var buf bytes.Buffer
	printError(&buf, err)
	out := buf.String()
	assert.Contains(t, out, "build failed [EXTERNAL_PROCESS]")
	assert.Contains(t, out, "command: make build")
	assert.Contains(t, out, "requestId: req-1")
	assert.Contains(t, out, "    make: *** No rule to make target 'build'.")
}

func TestPrintErrorPlain(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.New("boom"))
	assert.Contains(t, buf.String(), "Error: boom")
}

func TestServerURLFromConfigFile(t *testing.T) {
	_, url := newFakeHost(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unithost.yaml"),
		[]byte("server:\n  url: "+url+"\n"), 0o600))
	t.Chdir(dir)

	out, err := run(t, "list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "sample-unit")
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "list")
	require.Error(t, err)
	assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", args: nil, want: map[string]string{}},
		{name: "simple", args: []string{"A=1"}, want: map[string]string{"A": "1"}},
		{name: "empty value", args: []string{"A="}, want: map[string]string{"A": ""}},
		{name: "value with equals", args: []string{"A=b=c"}, want: map[string]string{"A": "b=c"}},
		{name: "missing equals", args: []string{"A"}, wantErr: true},
		{name: "missing key", args: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, name+" "+version)
	assert.Contains(t, out, "commit: "+commit)
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortCommit("0123456789abcdef"))
	assert.Equal(t, "abc", shortCommit("abc"))
}
