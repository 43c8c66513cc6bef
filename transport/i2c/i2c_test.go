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

package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	pn532 "github.com/ZaparooProject/go-pn532-core"
	virt "github.com/ZaparooProject/go-pn532-core/internal/testing"
)

var errNAK = errors.New("i2c: address not acknowledged")

// mockBus answers I2C transactions from a simulated PN532.
type mockBus struct {
	sim    *virt.VirtualPN532
	addrs  map[uint16]int
	speed  physic.Frequency
	asleep bool
	closed bool
}

func newMockBus(sim *virt.VirtualPN532) *mockBus {
	return &mockBus{sim: sim, addrs: map[uint16]int{}}
}

func (m *mockBus) Tx(addr uint16, w, r []byte) error {
	if m.closed {
		return errors.New("bus closed")
	}
	m.addrs[addr]++

	switch {
	case len(w) == 1 && w[0] == 0x00:
		if m.asleep {
			m.asleep = false
			_ = m.sim.Wakeup()
			return errNAK
		}
		return m.sim.Wakeup() //nolint:wrapcheck // test double
	case len(w) > 0:
		if err := m.sim.Write(w); err != nil {
			return err //nolint:wrapcheck // test double
		}
		if len(r) > 0 {
			data, err := m.sim.Transfer(r)
			if err != nil {
				return err //nolint:wrapcheck // test double
			}
			copy(r, data)
		}
		return nil
	case len(r) > 0:
		ready, err := m.sim.Ready()
		if err != nil {
			return err //nolint:wrapcheck // test double
		}
		clear(r)
		if !ready {
			return nil
		}
		r[0] = pn532Ready
		if len(r) == 1 {
			return nil
		}
		data, err := m.sim.Read(len(r) - 1)
		if err != nil {
			return err //nolint:wrapcheck // test double
		}
		copy(r[1:], data)
	}
	return nil
}

func (m *mockBus) SetSpeed(f physic.Frequency) error {
	m.speed = f
	return nil
}

func (*mockBus) String() string { return "mock://i2c" }

func (m *mockBus) Close() error {
	m.closed = true
	return nil
}

var _ i2c.BusCloser = (*mockBus)(nil)

func TestParseI2CPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/dev/i2c-1:0x24", "/dev/i2c-1"},
		{"/dev/i2c-1", "/dev/i2c-1"},
		{"I2C1", "I2C1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseI2CPath(tt.in), tt.in)
	}
}

func TestNewTransport_SetsSpeedAndAddress(t *testing.T) {
	t.Parallel()

	bus := newMockBus(virt.NewVirtualPN532())
	tr := newTransport(bus, "mock")
	assert.Equal(t, maxClockFreq, bus.speed)
	assert.Equal(t, pn532.TransportI2C, tr.Type())

	_, err := tr.Ready()
	require.NoError(t, err)
	assert.Equal(t, map[uint16]int{0x24: 1}, bus.addrs)
}

func TestTransport_DriverRoundTrip(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	sim.SetReadyDelay(2)
	sim.AddTag(virt.NewVirtualMIFARE1K(nil))
	tr := newTransport(newMockBus(sim), "mock")

	dev, err := pn532.New(tr, pn532.WithClock(virt.NewFakeClock()))
	require.NoError(t, err)
	ctx := context.Background()

	fw, err := dev.FirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x32), fw.IC)

	target, ok, err := dev.ReadPassiveTarget(ctx, pn532.BaudISO14443A, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, virt.TestMIFARE1KUID, target.UID)

	ok, err = dev.MifareAuthenticate(ctx, target.UID, 4, pn532.MifareKeyA, pn532.DefaultMifareKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransport_ReadStripsStatusByte(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	tr := newTransport(newMockBus(sim), "mock")

	require.NoError(t, tr.Write([]byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}))
	ack, err := tr.Read(6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}, ack)
}

func TestTransport_ReadWhileBusyIsTransient(t *testing.T) {
	t.Parallel()

	tr := newTransport(newMockBus(virt.NewVirtualPN532()), "mock")

	ready, err := tr.Ready()
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = tr.Read(6)
	require.ErrorIs(t, err, pn532.ErrTransportRead)
	assert.True(t, pn532.IsRetryable(err))
}

func TestTransport_WakeupToleratesNAK(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	bus := newMockBus(sim)
	bus.asleep = true
	tr := newTransport(bus, "mock")

	require.NoError(t, tr.Wakeup())
	require.NoError(t, tr.Wakeup())
	assert.Equal(t, 2, sim.WakeupCount())
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	bus := newMockBus(virt.NewVirtualPN532())
	tr := newTransport(bus, "mock")

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, bus.closed)

	require.ErrorIs(t, tr.Write([]byte{0x00}), pn532.ErrTransportClosed)
	_, err := tr.Read(1)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
	require.ErrorIs(t, tr.Wakeup(), pn532.ErrTransportClosed)
}
