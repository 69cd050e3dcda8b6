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

// Package registry provides the in-memory index of installed units.
//
// For every unit the registry keeps three coupled mappings keyed by the unit
// identifier: the live handler, the backing directory and the metadata
// record. Put and Remove change all three at once; Remove hands back what it
// removed so lifecycle operations can restore it when a later step fails.
//
// The registry is an explicit object passed to the lifecycle manager and the
// dispatcher; there is no package-level instance.
//
// Usage:
//
//	reg := registry.New()
//	reg.Put("sample-unit", h, "/var/lib/unithost/units/sample-unit", meta)
//
//	prev, ok := reg.Remove("sample-unit")
//	if ok && deleteFailed {
//	    reg.Restore("sample-unit", prev)
//	}
package registry
