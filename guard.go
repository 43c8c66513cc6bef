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

import "github.com/ZaparooProject/go-pn532-core/internal/syncutil"

// Guard serializes access to a Device shared between goroutines. A PN532
// handles one command at a time, and sequences such as authenticate-then-read
// or a GPIO read-modify-write must not interleave, so the whole function
// passed to Do runs under the lock.
type Guard struct {
	dev *Device
	mu  syncutil.Mutex
}

// NewGuard wraps dev. The device must not be used directly afterwards.
func NewGuard(dev *Device) *Guard {
	return &Guard{dev: dev}
}

// Do runs fn with exclusive access to the device.
func (g *Guard) Do(fn func(*Device) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev.transport == nil {
		return ErrTransportClosed
	}
	return fn(g.dev)
}

// Close waits for the running function, if any, and closes the device.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev.Close()
}
