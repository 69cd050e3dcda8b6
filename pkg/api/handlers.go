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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/manager"
	"github.com/NVIDIA/unithost/pkg/serializer"
	"github.com/NVIDIA/unithost/pkg/server"
)

// maxBodyBytes bounds management request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the unit management API.
type Handler struct {
	manager *manager.Manager
}

// NewHandler returns a Handler backed by m.
func NewHandler(m *manager.Manager) *Handler {
	return &Handler{manager: m}
}

// Routes returns the management routes keyed for server.WithHandler.
func (h *Handler) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"POST /api/units/install":    h.handleInstall,
		"GET /api/units":             h.handleList,
		"PUT /api/units/{name}":      h.handleUpdate,
		"DELETE /api/units/{name}":   h.handleUninstall,
		"GET /api/units/{name}/env":  h.handleGetEnv,
		"POST /api/units/{name}/env": h.handleSetEnv,
	}
}

// lifecycleContext detaches lifecycle calls from the request so a client
// disconnect cannot abort a half-finished cutover.
func lifecycleContext(r *http.Request, op string) context.Context {
	slog.Info("lifecycle request",
		"operation", op,
		"unit", chi.URLParam(r, "name"),
		"requestID", server.RequestIDFrom(r.Context()),
		"remote", r.RemoteAddr,
	)
	return context.WithoutCancel(r.Context())
}

func (h *Handler) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req InstallRequest
	if !decodeBody(w, r, &req) {
		return
	}

	source := req.Source()
	if source == "" {
		server.WriteError(w, r, http.StatusBadRequest, cnserrors.ErrCodeInvalidRequest,
			"sourceUrl is required", false, nil)
		return
	}

	id, err := h.manager.Install(lifecycleContext(r, "install"), source)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "install failed", map[string]any{"sourceUrl": source})
		return
	}

	serializer.RespondJSON(w, http.StatusOK, InstallResponse{Name: id})
}

func (h *Handler) handleUninstall(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Uninstall(lifecycleContext(r, "uninstall"), chi.URLParam(r, "name")); err != nil {
		server.WriteErrorFromErr(w, r, err, "uninstall failed", nil)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	meta, err := h.manager.Update(lifecycleContext(r, "update"), chi.URLParam(r, "name"))
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "update failed", nil)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, SuccessResponse{Success: true, Metadata: &meta})
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	serializer.RespondJSON(w, http.StatusOK, ListResponse{Units: h.manager.List()})
}

func (h *Handler) handleGetEnv(w http.ResponseWriter, r *http.Request) {
	env, err := h.manager.Env(chi.URLParam(r, "name"))
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "failed to read env", nil)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, EnvBody{Env: env})
}

func (h *Handler) handleSetEnv(w http.ResponseWriter, r *http.Request) {
	var body EnvBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Env == nil {
		body.Env = map[string]string{}
	}

	if err := h.manager.SetEnv(lifecycleContext(r, "env"), chi.URLParam(r, "name"), body.Env); err != nil {
		server.WriteErrorFromErr(w, r, err, "failed to write env", nil)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// decodeBody decodes a JSON body into v and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		details := map[string]any{"error": err.Error()}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			details["limit"] = tooLarge.Limit
		}
		server.WriteError(w, r, http.StatusBadRequest, cnserrors.ErrCodeInvalidRequest,
			"invalid JSON body", false, details)
		return false
	}
	return true
}
