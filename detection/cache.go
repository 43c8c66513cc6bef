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

package detection

import (
	"time"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache keeps the last scan per transport.
type resultCache struct {
	now     func() time.Time
	entries map[pn532.TransportType]cacheEntry
	mu      syncutil.RWMutex
}

func newResultCache(now func() time.Time) *resultCache {
	return &resultCache{now: now, entries: make(map[pn532.TransportType]cacheEntry)}
}

// get returns a copy of the cached devices if they are younger than ttl.
func (c *resultCache) get(t pn532.TransportType, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[t]
	if !ok || c.now().Sub(entry.stored) > ttl {
		return nil, false
	}
	return append([]DeviceInfo(nil), entry.devices...), true
}

func (c *resultCache) set(t pn532.TransportType, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[t] = cacheEntry{
		stored:  c.now(),
		devices: append([]DeviceInfo(nil), devices...),
	}
}

func (c *resultCache) drop(t pn532.TransportType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, t)
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[pn532.TransportType]cacheEntry)
}
