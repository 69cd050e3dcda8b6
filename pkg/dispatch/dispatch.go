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
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NVIDIA/unithost/pkg/registry"
	"github.com/NVIDIA/unithost/pkg/unit"
)

var dispatchedRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "unithost_dispatch_requests_total",
		Help: "Total number of requests forwarded to units",
	},
	[]string{"unit", "method"},
)

type adapter struct {
	generation uint64
	handler    http.Handler
}

// Dispatcher forwards requests for /{id}/... to the registered unit.
// It only reads the registry.
type Dispatcher struct {
	registry *registry.Registry

	mu       sync.Mutex
	adapters map[string]adapter
}

// New returns a Dispatcher reading from reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		adapters: make(map[string]adapter),
	}
}

// Route serves r if its first path segment names a registered unit and the
// method is GET or POST. It reports whether the request was handled; when it
// returns false nothing has been written to w.
func (d *Dispatcher) Route(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return false
	}

	id := FirstSegment(r.URL.Path)
	if id == "" {
		return false
	}

	h, ok := d.lookup(id)
	if !ok {
		return false
	}

	dispatchedRequests.WithLabelValues(id, r.Method).Inc()
	h.ServeHTTP(w, r)
	return true
}

// Middleware routes unit requests and passes everything else to next.
func (d *Dispatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Route(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Invalidate drops the cached adapter for id.
func (d *Dispatcher) Invalidate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.adapters, id)
}

func (d *Dispatcher) lookup(id string) (http.Handler, bool) {
	e, ok := d.registry.Get(id)
	if !ok {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if a, ok := d.adapters[id]; ok && a.generation == e.Generation {
		return a.handler, true
	}

	a := adapter{
		generation: e.Generation,
		handler:    newAdapter(id, e.Handler),
	}
	d.adapters[id] = a
	slog.Debug("unit adapter created", "unit", id, "generation", e.Generation)
	return a.handler, true
}

// newAdapter strips the /{id} prefix and calls the unit method matching the
// request method.
func newAdapter(id string, h unit.Handler) http.Handler {
	prefix := "/" + id
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		p := strings.TrimPrefix(r.URL.Path, prefix)
		if p == "" {
			p = "/"
		}
		r2.URL.Path = p
		r2.URL.RawPath = ""

		switch r.Method {
		case http.MethodGet:
			h.ServeGet(w, r2)
		case http.MethodPost:
			h.ServePost(w, r2)
		}
	})
}

// FirstSegment returns the first non-empty segment of an URL path.
func FirstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
