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

// Package config loads unit host settings with viper.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file
// (--config, or unithost.yaml in the working directory) and UNITHOST_*
// environment variables where dots become underscores:
//
//	root: /var/lib/unithost/units
//	log_level: info
//	server:
//	  port: 8080
//	build:
//	  steps:
//	    - go mod download
//	    - go build -buildmode=plugin -ldflags=-pluginpath={{pluginpath}} -o dist/unit.so .
//	  timeout: 10m
//	git:
//	  ssh_rewrite: false
//	restart:
//	  enabled: true
//
//	UNITHOST_SERVER_PORT=9090 UNITHOST_RESTART_ENABLED=false unithostd
package config
