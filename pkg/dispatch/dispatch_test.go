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

package dispatch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/unithost/pkg/registry"
	"github.com/NVIDIA/unithost/pkg/unit"
)

type echoUnit struct {
	name string
}

func (u echoUnit) ServeGet(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, u.name+" GET "+r.URL.Path)
}

func (u echoUnit) ServePost(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, u.name+" POST "+r.URL.Path+" "+string(b))
}

func newDispatcher(t *testing.T) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.Put("sample-unit", echoUnit{name: "v1"}, "/units/sample-unit", unit.Metadata{Name: "sample-unit"})
	return New(reg), reg
}

func TestRoute(t *testing.T) {
	d, _ := newDispatcher(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		handled  bool
		wantCode int
		wantBody string
	}{
		{"get root", http.MethodGet, "/sample-unit", "", true, http.StatusOK, "v1 GET /"},
		{"get nested", http.MethodGet, "/sample-unit/sse/stream", "", true, http.StatusOK, "v1 GET /sse/stream"},
		{"post", http.MethodPost, "/sample-unit/messages", "hi", true, http.StatusCreated, "v1 POST /messages hi"},
		{"unknown unit", http.MethodGet, "/other/x", "", false, 0, ""},
		{"empty path", http.MethodGet, "/", "", false, 0, ""},
		{"delete not forwarded", http.MethodDelete, "/sample-unit", "", false, 0, ""},
		{"put not forwarded", http.MethodPut, "/sample-unit", "", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handled := d.Route(w, req)
			assert.Equal(t, tt.handled, handled)
			if !tt.handled {
				assert.Zero(t, w.Body.Len(), "unhandled request must not write")
				return
			}
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestRouteDoesNotMutateRequest(t *testing.T) {
	d, _ := newDispatcher(t)
	req := httptest.NewRequest(http.MethodGet, "/sample-unit/a", nil)
	require.True(t, d.Route(httptest.NewRecorder(), req))
	assert.Equal(t, "/sample-unit/a", req.URL.Path)
}

func TestReplacedHandlerIsPickedUp(t *testing.T) {
	d, reg := newDispatcher(t)

	get := func() string {
		w := httptest.NewRecorder()
		require.True(t, d.Route(w, httptest.NewRequest(http.MethodGet, "/sample-unit", nil)))
		return w.Body.String()
	}

	assert.Equal(t, "v1 GET /", get())
	reg.Put("sample-unit", echoUnit{name: "v2"}, "/units/sample-unit", unit.Metadata{Name: "sample-unit"})
	assert.Equal(t, "v2 GET /", get())
}

func TestRemovedUnitIsUnhandled(t *testing.T) {
	d, reg := newDispatcher(t)
	require.True(t, d.Route(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sample-unit", nil)))

	reg.Remove("sample-unit")
	d.Invalidate("sample-unit")
	assert.False(t, d.Route(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sample-unit", nil)))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.adapters)
}

func TestMiddleware(t *testing.T) {
	d, _ := newDispatcher(t)
	fallback := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := d.Middleware(fallback)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sample-unit", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFirstSegment(t *testing.T) {
	assert.Equal(t, "a", FirstSegment("/a/b/c"))
	assert.Equal(t, "a", FirstSegment("/a"))
	assert.Equal(t, "", FirstSegment("/"))
	assert.Equal(t, "", FirstSegment(""))
}
