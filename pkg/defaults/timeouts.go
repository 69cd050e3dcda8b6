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

package defaults

import "time"

// Server timeouts for HTTP server configuration.
const (
	// ServerReadTimeout is the maximum duration for reading request headers.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	// Install and update responses are written only after the build finishes,
	// so this is sized for a full clone and build.
	ServerWriteTimeout = 15 * time.Minute

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 20 * time.Minute

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// Lifecycle timeouts for unit operations.
const (
	// BuildStepTimeout bounds a single external build command. Zero means
	// unbounded; a hung build then blocks only its own lifecycle call.
	BuildStepTimeout time.Duration = 0

	// LockAcquireTimeout bounds how long a lifecycle call waits for another
	// operation on the same unit to finish.
	LockAcquireTimeout = 30 * time.Minute

	// RestartDelay is how long the process waits after a successful mutation
	// before exiting, so the response reaches the caller first.
	RestartDelay = 100 * time.Millisecond
)

// HTTP client timeouts for outbound requests.
const (
	// HTTPClientTimeout is the default total timeout for read-only requests.
	HTTPClientTimeout = 30 * time.Second

	// HTTPLifecycleTimeout is the total timeout for install, update and
	// uninstall requests, which block on clone and build.
	HTTPLifecycleTimeout = 15 * time.Minute

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers
	// on read-only requests.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second
)
