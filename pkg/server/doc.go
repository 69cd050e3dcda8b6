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

// Package server provides the HTTP server that fronts the unit host: the
// management API, unit dispatch and the system endpoints.
//
// # Architecture
//
// Routes are served by a chi router. Every configured handler is wrapped in
// the same middleware chain:
//
//   - Prometheus RED metrics labelled by route pattern
//   - API version negotiation (Accept: application/vnd.unithost.v1+json)
//   - Request ID tracking (X-Request-Id, UUID)
//   - Panic recovery
//   - Rate limiting using a token bucket (golang.org/x/time/rate)
//   - Request logging
//
// Requests that match no route go to Config.Fallback, which the unit host
// sets to the dispatcher. The fallback is wrapped in the same chain.
//
// # Usage
//
//	s := server.New(
//	    server.WithName("unithostd"),
//	    server.WithVersion(version),
//	    server.WithHandler(map[string]http.HandlerFunc{
//	        "GET /api/units": listUnits,
//	    }),
//	    server.WithFallback(dispatcher.Middleware(http.HandlerFunc(server.NotFound))),
//	)
//	if err := s.Run(ctx); err != nil {
//	    return err
//	}
//
// # System Endpoints
//
//	GET /health   liveness, always 200
//	GET /ready    200 once listening, 503 while starting or shutting down
//	GET /metrics  Prometheus exposition
//
// # Error Handling
//
// All errors return a consistent JSON structure:
//
//	{
//	  "code": "EXTERNAL_PROCESS",
//	  "message": "install failed",
//	  "details": {"unit": "sample-unit", "command": "npm run build", "output": "..."},
//	  "requestId": "550e8400-e29b-41d4-a716-446655440000",
//	  "timestamp": "2026-01-12T12:00:00Z",
//	  "retryable": true
//	}
//
// HTTPStatusFromCode maps error codes to status: INVALID_REQUEST 400,
// NOT_FOUND 404, METHOD_NOT_ALLOWED 405, RATE_LIMIT_EXCEEDED 429,
// EXTERNAL_PROCESS 502, SERVICE_UNAVAILABLE 503, TIMEOUT 504, everything
// else 500.
//
// Configuration honours PORT and SHUTDOWN_TIMEOUT_SECONDS from the
// environment.
package server
