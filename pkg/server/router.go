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

package server

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/serializer"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes mounts system endpoints without middleware and every
// configured handler behind the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	// System endpoints (no rate limiting)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	for key, h := range s.config.Handlers {
		method, pattern := splitRouteKey(key)
		if method == "" {
			r.Handle(pattern, s.withMiddleware(h))
			continue
		}
		r.Method(method, pattern, s.withMiddleware(h))
	}

	fallback := s.config.Fallback
	if fallback == nil {
		fallback = http.HandlerFunc(NotFound)
	}
	r.NotFound(s.withMiddleware(fallback.ServeHTTP))
	r.MethodNotAllowed(s.withMiddleware(methodNotAllowed))

	return r
}

// splitRouteKey splits "GET /path" into method and pattern. A bare pattern
// returns an empty method.
func splitRouteKey(key string) (string, string) {
	method, pattern, found := strings.Cut(strings.TrimSpace(key), " ")
	if !found {
		return "", method
	}
	return strings.ToUpper(method), strings.TrimSpace(pattern)
}

// NotFound renders the JSON 404 used for unknown routes and unknown units.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, cnserrors.ErrCodeNotFound,
		"Not found", false, map[string]any{"path": r.URL.Path})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, cnserrors.ErrCodeMethodNotAllowed,
		"Method not allowed", false, map[string]any{"method": r.Method})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		methodNotAllowed(w, r)
		return
	}

	slog.Debug("handling default route",
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
	)

	routes := make([]string, 0, len(s.config.Handlers)+3)
	for key := range s.config.Handlers {
		if key == "/" {
			continue
		}
		routes = append(routes, key)
	}
	routes = append(routes, "GET /health", "GET /ready", "GET /metrics")
	sort.Strings(routes)

	resp := struct {
		Name      string   `json:"name"`
		Version   string   `json:"version"`
		Ready     bool     `json:"ready"`
		Timestamp string   `json:"timestamp"`
		Routes    []string `json:"routes"`
	}{
		Name:      s.config.Name,
		Version:   s.config.Version,
		Ready:     s.isReady(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Routes:    routes,
	}

	serializer.RespondJSON(w, http.StatusOK, resp)
}
