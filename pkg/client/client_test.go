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

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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

type recorded struct {
	method string
	path   string
	accept string
	body   string
}

type callLog struct {
	mu    sync.Mutex
	calls []recorded
}

func (l *callLog) add(r recorded) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, r)
}

func (l *callLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.calls...)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *callLog) {
	t.Helper()
	log := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		log.add(recorded{method: r.Method, path: r.URL.EscapedPath(), accept: r.Header.Get("Accept"), body: string(b)})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, log
}

func TestNewValidatesURL(t *testing.T) {
	for _, bad := range []string{"", "localhost:8080", "ftp://host", "http://"} {
		_, err := New(bad)
		require.Error(t, err, bad)
		assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))
	}

	c, err := New("https://units.example.com")
	require.NoError(t, err)
	assert.NotNil(t, c.query)
	assert.NotNil(t, c.lifecycle)
	assert.NotSame(t, c.query, c.lifecycle)
}

func TestInstall(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		serializer.RespondJSON(w, http.StatusOK, api.InstallResponse{Name: "sample-unit"})
	})

	name, err := c.Install(context.Background(), "https://github.com/acme/sample-unit.git")
	require.NoError(t, err)
	assert.Equal(t, "sample-unit", name)

	require.Len(t, calls.all(), 1)
	call := calls.all()[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/units/install", call.path)
	assert.Equal(t, "application/vnd.unithost.v1+json", call.accept)
	assert.JSONEq(t, `{"sourceUrl":"https://github.com/acme/sample-unit.git"}`, call.body)
}

func TestUpdateAndUninstall(t *testing.T) {
	installed := time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{
				Success:  true,
				Metadata: &unit.Metadata{Name: "sample-unit", Commit: "abc123", InstalledAt: installed},
			})
		case http.MethodDelete:
			serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
		}
	})

	meta, err := c.Update(context.Background(), "sample-unit")
	require.NoError(t, err)
	assert.Equal(t, "abc123", meta.Commit)
	assert.True(t, installed.Equal(meta.InstalledAt))

	require.NoError(t, c.Uninstall(context.Background(), "sample-unit"))

	got := calls.all()
	require.Len(t, got, 2)
	assert.Equal(t, "/api/units/sample-unit", got[0].path)
	assert.Equal(t, http.MethodDelete, got[1].method)
}

func TestUpdateWithoutMetadataFails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	})

	_, err := c.Update(context.Background(), "sample-unit")
	require.Error(t, err)
	assert.Equal(t, cnserrors.ErrCodeInternal, cnserrors.CodeOf(err))
}

func TestListAndEnv(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/units":
			serializer.RespondJSON(w, http.StatusOK, api.ListResponse{Units: []unit.Metadata{{Name: "a"}, {Name: "b"}}})
		case "/api/units/a/env":
			if r.Method == http.MethodGet {
				serializer.RespondJSON(w, http.StatusOK, map[string]any{"env": nil})
				return
			}
			serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
		}
	})

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Units, 2)
	assert.Equal(t, "b", list.Units[1].Name)

	env, err := c.Env(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, env.Env)
	assert.Empty(t, env.Env)

	require.NoError(t, c.SetEnv(context.Background(), "a", map[string]string{"GREETING": "hi\nthere"}))
	got := calls.all()
	last := got[len(got)-1]
	assert.Equal(t, http.MethodPost, last.method)

	var sent api.EnvBody
	require.NoError(t, json.Unmarshal([]byte(last.body), &sent))
	assert.Equal(t, "hi\nthere", sent.Env["GREETING"])
}

func TestPathIsEscaped(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		serializer.RespondJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	})

	require.NoError(t, c.Uninstall(context.Background(), "odd name"))
	assert.Equal(t, "/api/units/odd%20name", calls.all()[0].path)
}

func TestStructuredErrorsRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, r, http.StatusBadGateway, cnserrors.ErrCodeExternalProcess,
			"install failed", true, map[string]any{"unit": "sample-unit", "output": "npm ERR!"})
	})

	_, err := c.Install(context.Background(), "https://github.com/acme/sample-unit.git")
	require.Error(t, err)

	se := cnserrors.Root(err)
	require.NotNil(t, se)
	assert.Equal(t, cnserrors.ErrCodeExternalProcess, se.Code)
	assert.Equal(t, "install failed", se.Message)
	assert.Equal(t, "sample-unit", se.Context["unit"])
	assert.Equal(t, "npm ERR!", se.Context["output"])
	assert.Equal(t, http.StatusBadGateway, se.Context["status"])
	assert.NotEmpty(t, se.Context["requestId"])
}

func TestNonJSONErrorFallsBackToStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream gone", http.StatusServiceUnavailable)
	})

	_, err := c.List(context.Background())
	require.Error(t, err)
	se := cnserrors.Root(err)
	require.NotNil(t, se)
	assert.Equal(t, cnserrors.ErrCodeUnavailable, se.Code)
	assert.Equal(t, "upstream gone", se.Context["body"])
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, cnserrors.ErrCodeUnavailable, cnserrors.CodeOf(err))
}

func TestCodeFromStatus(t *testing.T) {
	tests := map[int]cnserrors.ErrorCode{
		http.StatusBadRequest:          cnserrors.ErrCodeInvalidRequest,
		http.StatusNotFound:            cnserrors.ErrCodeNotFound,
		http.StatusMethodNotAllowed:    cnserrors.ErrCodeMethodNotAllowed,
		http.StatusTooManyRequests:     cnserrors.ErrCodeRateLimitExceeded,
		http.StatusBadGateway:          cnserrors.ErrCodeExternalProcess,
		http.StatusServiceUnavailable:  cnserrors.ErrCodeUnavailable,
		http.StatusGatewayTimeout:      cnserrors.ErrCodeTimeout,
		http.StatusInternalServerError: cnserrors.ErrCodeInternal,
		http.StatusTeapot:              cnserrors.ErrCodeInternal,
	}
	for status, want := range tests {
		assert.Equal(t, want, codeFromStatus(status), http.StatusText(status))
	}
}
