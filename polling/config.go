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
	"errors"
	"fmt"
	"time"
)

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// poll interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep checks if the elapsed time since last poll indicates a system sleep.
// Returns true if elapsed time exceeds (pollInterval + TimeDiscontinuityThreshold).
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	expectedMax := pollInterval + cfg.TimeDiscontinuityThreshold
	return elapsed > expectedMax
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid polling config")

// Config holds polling configuration options
type Config struct {
	// PollInterval is the pause between two detection attempts
	PollInterval time.Duration
	// PollTimeout bounds each ReadPassiveTarget call; 0 uses the device
	// default
	PollTimeout time.Duration
	// RemovalThreshold is how many consecutive empty polls mark the card
	// as removed
	RemovalThreshold int
	// HardwareRetries is passed to SetPassiveActivationRetries before
	// polling starts. 0x00 returns immediately, 0xFF retries forever.
	HardwareRetries byte
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:     250 * time.Millisecond,
		PollTimeout:      100 * time.Millisecond,
		RemovalThreshold: 3,
		HardwareRetries:  0x10,
		SleepRecovery:    DefaultSleepRecoveryConfig(),
	}
}

// Validate rejects settings the monitor cannot run with.
func (c Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfig, c.PollInterval)
	case c.PollTimeout < 0:
		return fmt.Errorf("%w: negative poll timeout %s", ErrInvalidConfig, c.PollTimeout)
	case c.RemovalThreshold < 1:
		return fmt.Errorf("%w: removal threshold must be at least 1, got %d", ErrInvalidConfig, c.RemovalThreshold)
	case c.HardwareRetries == 0xFF:
		return fmt.Errorf("%w: endless hardware retries would block the monitor", ErrInvalidConfig)
	}
	return nil
}
