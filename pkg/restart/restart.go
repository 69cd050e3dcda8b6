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

package restart

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/NVIDIA/unithost/pkg/defaults"
)

// Restarter is signalled after a successful mutation of the unit set.
type Restarter interface {
	Schedule(reason string)
}

// Noop ignores restart requests. Used when units are hot swapped in process.
type Noop struct{}

// Schedule does nothing.
func (Noop) Schedule(string) {}

// ProcessRestarter exits the process shortly after a mutation so the
// supervisor starts it again with a clean plugin set. Loaded plugins cannot
// be unloaded, so this is the only way to release a replaced unit.
type ProcessRestarter struct {
	delay  time.Duration
	once   sync.Once
	exit   func(int)
	notify func(state string) (bool, error)
}

// NewProcessRestarter returns a restarter that exits after delay. A zero
// delay uses defaults.RestartDelay.
func NewProcessRestarter(delay time.Duration) *ProcessRestarter {
	if delay <= 0 {
		delay = defaults.RestartDelay
	}
	return &ProcessRestarter{
		delay:  delay,
		exit:   os.Exit,
		notify: sdNotify,
	}
}

// Schedule tells systemd the service is stopping and exits with status 0
// after the configured delay. Only the first call has an effect.
func (p *ProcessRestarter) Schedule(reason string) {
	p.once.Do(func() {
		slog.Info("restart scheduled", "reason", reason, "delay", p.delay.String())
		go func() {
			if _, err := p.notify(daemon.SdNotifyStopping); err != nil {
				slog.Warn("failed to notify service manager", "error", err)
			}
			time.Sleep(p.delay)
			p.exit(0)
		}()
	})
}

// NotifyReady reports readiness to systemd. It is a no-op outside systemd.
func NotifyReady() {
	sent, err := sdNotify(daemon.SdNotifyReady)
	if err != nil {
		slog.Warn("failed to notify service manager", "error", err)
		return
	}
	if sent {
		slog.Debug("notified service manager", "state", daemon.SdNotifyReady)
	}
}

func sdNotify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}
