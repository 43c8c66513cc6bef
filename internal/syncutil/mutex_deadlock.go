//go:build deadlock

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

package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

func init() {
	// a PN532 command never holds a lock longer than its own deadline
	deadlock.Opts.DeadlockTimeout = 2 * time.Minute
}

// Mutex is a deadlock.Mutex in deadlock-detection builds.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex in deadlock-detection builds.
type RWMutex struct {
	deadlock.RWMutex
}

// DeadlockDetection reports whether this build uses go-deadlock.
const DeadlockDetection = true
