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
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-pn532-core/internal/testing"
)

// newTestDevice returns a device wired to a fresh simulator. Ready polling
// runs on a fake clock, so timeouts elapse without sleeping.
func newTestDevice(t *testing.T, opts ...Option) (*Device, *testutil.VirtualPN532) {
	t.Helper()
	sim := testutil.NewVirtualPN532()
	opts = append([]Option{WithClock(testutil.NewFakeClock())}, opts...)
	dev, err := New(sim, opts...)
	require.NoError(t, err)
	return dev, sim
}

// newTagDevice returns a device with tag in the field, already selected
// as target 1.
func newTagDevice(t *testing.T, tag *testutil.VirtualTag) (*Device, *testutil.VirtualPN532) {
	t.Helper()
	dev, sim := newTestDevice(t)
	sim.AddTag(tag)
	target, ok, err := dev.ReadPassiveTarget(context.Background(), BaudISO14443A, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tag.UID, target.UID)
	return dev, sim
}
