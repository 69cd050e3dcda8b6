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

// Service settings shared by the server, the CLI and the config loader.
const (
	// ServerPort is the listen port when neither config nor PORT sets one.
	ServerPort = 8080

	// ServerURL is the address the CLI talks to by default.
	ServerURL = "http://localhost:8080"

	// ManagedRoot is the directory holding one subdirectory per unit.
	ManagedRoot = "units"

	// ConfigFileName is the config file looked up in the working directory.
	ConfigFileName = "unithost.yaml"

	// EnvPrefix prefixes environment overrides (UNITHOST_SERVER_PORT).
	EnvPrefix = "UNITHOST"
)
