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

package manager

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

// keyedLocks serializes lifecycle operations per unit identifier.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*semaphore.Weighted)}
}

func (k *keyedLocks) get(id string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.locks[id]
	if !ok {
		s = semaphore.NewWeighted(1)
		k.locks[id] = s
	}
	return s
}

// acquire blocks until id is free, ctx is done or timeout elapses.
func (k *keyedLocks) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s := k.get(id)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeTimeout,
			"another operation on this unit is still running", err,
			map[string]any{"unit": id})
	}
	return func() { s.Release(1) }, nil
}
