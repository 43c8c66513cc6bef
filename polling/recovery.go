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

// Recoverer restores a reader that stopped answering, for example after
// the host slept.
type Recoverer interface {
	Recover(ctx context.Context, guard *pn532.Guard) error
}

// DefaultRecoverer soft-resets the PN532 with Device.Wakeup, which resends
// the bus wake-up signal and SAMConfiguration. That is enough once the bus
// itself is still usable.
type DefaultRecoverer struct {
	backoff     time.Duration
	maxAttempts int
}

// NewDefaultRecoverer creates a recoverer. Zero values pick 3 attempts
// 500 ms apart.
func NewDefaultRecoverer(backoff time.Duration, maxAttempts int) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// Recover retries the soft reset up to maxAttempts times. A closed
// transport is not retried.
func (r *DefaultRecoverer) Recover(ctx context.Context, guard *pn532.Guard) error {
	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			timer := time.NewTimer(r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := guard.Do(func(d *pn532.Device) error { return d.Wakeup(ctx) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, pn532.ErrTransportClosed) {
			break
		}
	}
	return fmt.Errorf("recovery failed: %w", lastErr)
}
