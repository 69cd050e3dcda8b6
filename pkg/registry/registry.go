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

package registry

import (
	"sort"
	"sync"

	"github.com/NVIDIA/unithost/pkg/unit"
)

// Entry is the triad held for one unit, plus the generation assigned when
// it was stored.
type Entry struct {
	Handler    unit.Handler
	Directory  string
	Metadata   unit.Metadata
	Generation uint64
}

// Registry holds the handler, directory and metadata mappings for installed
// units. The three mappings are only ever changed together under one lock,
// so a reader never sees part of a triad.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]unit.Handler
	dirs       map[string]string
	metadata   map[string]unit.Metadata
	generation map[string]uint64
	nextGen    uint64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		handlers:   make(map[string]unit.Handler),
		dirs:       make(map[string]string),
		metadata:   make(map[string]unit.Metadata),
		generation: make(map[string]uint64),
	}
}

// Put stores or replaces the triad for id and returns its new generation.
// Every Put gets a fresh generation, including a Put that restores a
// previously removed entry.
func (r *Registry) Put(id string, h unit.Handler, dir string, meta unit.Metadata) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGen++
	r.handlers[id] = h
	r.dirs[id] = dir
	r.metadata[id] = meta
	r.generation[id] = r.nextGen
	return r.nextGen
}

// Get returns the triad for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entryLocked(id)
}

// Remove deletes the triad for id and returns what was stored, so a caller
// can put it back if a follow-up step fails.
func (r *Registry) Remove(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entryLocked(id)
	if !ok {
		return Entry{}, false
	}
	delete(r.handlers, id)
	delete(r.dirs, id)
	delete(r.metadata, id)
	delete(r.generation, id)
	return e, true
}

// Restore puts back an entry returned by Remove.
func (r *Registry) Restore(id string, e Entry) uint64 {
	return r.Put(id, e.Handler, e.Directory, e.Metadata)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[id]
	return ok
}

// List returns a snapshot of all metadata ordered by unit name.
func (r *Registry) List() []unit.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]unit.Metadata, 0, len(r.metadata))
	for _, m := range r.metadata {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// IDs returns all registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered units.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *Registry) entryLocked(id string) (Entry, bool) {
	h, ok := r.handlers[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Handler:    h,
		Directory:  r.dirs[id],
		Metadata:   r.metadata[id],
		Generation: r.generation[id],
	}, true
}
