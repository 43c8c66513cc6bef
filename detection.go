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
	"context"
	"fmt"
	"time"
)

// Limits for WaitForTarget's tolerance of failed polls
const (
	maxDetectionErrors    = 10
	loggedDetectionErrors = 3
)

// WaitForTarget polls ReadPassiveTarget every interval until a card
// answers or ctx ends. Each poll waits at most interval for the card.
//
// Retryable errors (a garbled frame, a card that left mid-activation) are
// counted and polling continues; after ten of them the last one is
// returned. Any other error ends the wait immediately.
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	target, err := device.WaitForTarget(ctx, 100*time.Millisecond)
//	if errors.Is(err, context.DeadlineExceeded) {
//	    fmt.Println("no card")
//	}
func (d *Device) WaitForTarget(ctx context.Context, interval time.Duration) (*Target, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", ErrInvalidParameter)
	}

	errorCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target, ok, err := d.ReadPassiveTarget(ctx, BaudISO14443A, interval)
		switch {
		case err != nil:
			if herr := d.handleDetectionError(&errorCount, err); herr != nil {
				return nil, herr
			}
		case ok:
			Debugf("card detected: UID=%s", target.UIDString())
			return target, nil
		}

		if err := pause(ctx, interval); err != nil {
			return nil, err
		}
	}
}

func (*Device) handleDetectionError(errorCount *int, err error) error {
	if !IsRetryable(err) {
		return err
	}

	*errorCount++
	if *errorCount <= loggedDetectionErrors {
		Debugf("detection error #%d: %v", *errorCount, err)
	}
	if *errorCount >= maxDetectionErrors {
		return fmt.Errorf("too many detection errors (%d), last error: %w", *errorCount, err)
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
