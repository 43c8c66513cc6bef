// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	pn532 "github.com/ZaparooProject/go-pn532-core"
)

// Monitor polls a reader for a single card and reports arrivals and
// removals. All device access goes through a Guard, so other goroutines can
// use the reader between polls.
type Monitor struct {
	guard     *pn532.Guard
	clock     pn532.Clock
	recoverer Recoverer
	lastPoll  time.Time
	state     CardState
	config    Config
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock substitutes the time source used for event timestamps and
// sleep detection.
func WithClock(c pn532.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithRecoverer replaces the default soft-reset recoverer.
func WithRecoverer(r Recoverer) Option {
	return func(m *Monitor) { m.recoverer = r }
}

// NewMonitor validates config and returns a monitor for guard's device.
func NewMonitor(guard *pn532.Guard, config Config, opts ...Option) (*Monitor, error) {
	if guard == nil {
		return nil, fmt.Errorf("%w: nil guard", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		guard:  guard,
		config: config,
		clock:  pn532.SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.recoverer == nil {
		sr := config.SleepRecovery
		m.recoverer = NewDefaultRecoverer(sr.RecoveryBackoff, sr.MaxRecoveryAttempts)
	}
	return m, nil
}

// State returns a copy of the current card state.
func (m *Monitor) State() CardState {
	return m.state
}

// Poll runs one detection cycle. Transient errors count as an empty poll;
// fatal errors and context cancellation are returned.
func (m *Monitor) Poll(ctx context.Context) ([]Event, error) {
	var target *pn532.Target
	err := m.guard.Do(func(d *pn532.Device) error {
		t, ok, err := d.ReadPassiveTarget(ctx, pn532.BaudISO14443A, m.config.PollTimeout)
		if ok {
			target = t
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if pn532.IsFatal(err) {
			return nil, err
		}
		pn532.Debugf("poll failed, counting as empty: %v", err)
		target = nil
	}

	now := m.clock.Now()
	m.lastPoll = now
	return m.state.observe(target, now, m.config.RemovalThreshold), nil
}

// Run configures the hardware retry count and polls until ctx is done or
// the reader fails fatally. handler is called synchronously for every
// event. When the gap between polls shows the host slept, the present card
// is reported removed and the reader is soft-reset before polling resumes.
func (m *Monitor) Run(ctx context.Context, handler func(Event)) error {
	err := m.guard.Do(func(d *pn532.Device) error {
		_, err := d.SetPassiveActivationRetries(ctx, m.config.HardwareRetries)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to configure hardware polling retries: %w", err)
	}

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.checkSleep(ctx, handler); err != nil {
			return err
		}

		events, err := m.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("polling stopped: %w", err)
		}
		for _, ev := range events {
			handler(ev)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) checkSleep(ctx context.Context, handler func(Event)) error {
	if m.lastPoll.IsZero() {
		return nil
	}
	now := m.clock.Now()
	if !m.config.SleepRecovery.DetectSleep(now.Sub(m.lastPoll), m.config.PollInterval) {
		return nil
	}

	pn532.Debugf("poll gap of %s, assuming host sleep", now.Sub(m.lastPoll))
	if m.state.Present {
		handler(m.state.removed(now))
	}
	if err := m.recoverer.Recover(ctx, m.guard); err != nil {
		return fmt.Errorf("reader did not recover after sleep: %w", err)
	}
	m.lastPoll = m.clock.Now()
	return nil
}
