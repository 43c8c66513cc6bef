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

package pn532

import (
	"fmt"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithTimeout sets the default timeout for device operations
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		return d.SetTimeout(timeout)
	}
}

// WithPollInterval sets the delay between ready checks. The PN532 needs a
// few milliseconds between status reads; values outside 1-100 ms are
// rejected.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) error {
		if interval < time.Millisecond || interval > 100*time.Millisecond {
			return fmt.Errorf("%w: poll interval %v out of range", ErrInvalidParameter, interval)
		}
		d.config.PollInterval = interval
		return nil
	}
}

// WithTargetTimeout sets the default wait for InitAsTarget
func WithTargetTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: target timeout must be positive", ErrInvalidParameter)
		}
		d.config.TargetTimeout = timeout
		return nil
	}
}

// WithClock replaces the wall clock used for ready polling
func WithClock(clock Clock) Option {
	return func(d *Device) error {
		if clock == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidParameter)
		}
		d.clock = clock
		return nil
	}
}
