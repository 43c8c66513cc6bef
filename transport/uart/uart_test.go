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

package uart

import (
	"context"
	"errors"
	"io"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	pn532 "github.com/ZaparooProject/go-pn532-core"
	virt "github.com/ZaparooProject/go-pn532-core/internal/testing"
)

var errPortClosed = errors.New("port closed")

// mockPort is a serial.Port backed by the simulator's byte stream.
type mockPort struct {
	conn       io.ReadWriter
	drainErrs  []error
	written    [][]byte
	timeout    time.Duration
	resets     int
	drains     int
	shortWrite bool
	closed     bool
}

func newMockPort(sim *virt.VirtualPN532, cfg virt.JitterConfig) *mockPort {
	return &mockPort{conn: virt.NewJitteryConnection(sim.Stream(), cfg)}
}

func (*mockPort) SetMode(*serial.Mode) error { return nil }

func (m *mockPort) Read(p []byte) (int, error) {
	if m.closed {
		return 0, errPortClosed
	}
	return m.conn.Read(p) //nolint:wrapcheck // test double
}

func (m *mockPort) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errPortClosed
	}
	m.written = append(m.written, append([]byte(nil), p...))
	if m.shortWrite {
		return len(p) - 1, nil
	}
	return m.conn.Write(p) //nolint:wrapcheck // test double
}

func (m *mockPort) Drain() error {
	m.drains++
	if len(m.drainErrs) > 0 {
		err := m.drainErrs[0]
		m.drainErrs = m.drainErrs[1:]
		return err
	}
	return nil
}

func (m *mockPort) ResetInputBuffer() error {
	m.resets++
	return nil
}

func (*mockPort) ResetOutputBuffer() error { return nil }
func (*mockPort) SetDTR(bool) error        { return nil }
func (*mockPort) SetRTS(bool) error        { return nil }

func (*mockPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *mockPort) SetReadTimeout(d time.Duration) error {
	m.timeout = d
	return nil
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

func (*mockPort) Break(time.Duration) error { return nil }

var _ serial.Port = (*mockPort)(nil)

var (
	ackFrame = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	// D4 02: GetFirmwareVersion
	firmwareFrame = []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}
)

func TestFrameLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  []byte
		want int
	}{
		{name: "empty", buf: nil, want: -1},
		{name: "ack", buf: []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}, want: 6},
		{name: "nack", buf: []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}, want: 6},
		{name: "partial_ack", buf: []byte{0x00, 0x00, 0xFF, 0x00}, want: -1},
		{name: "ack_then_more", buf: []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0x00, 0x00, 0xFF}, want: 6},
		{name: "info", buf: firmwareFrame, want: 9},
		{name: "info_truncated", buf: firmwareFrame[:8], want: -1},
		{name: "leading_noise", buf: append([]byte{0x55, 0x00}, firmwareFrame...), want: 11},
		{name: "syntax_error", buf: []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00}, want: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, frameLength(tt.buf))
		})
	}
}

func TestReadTimeout(t *testing.T) {
	t.Parallel()

	want := 50 * time.Millisecond
	if runtime.GOOS == "windows" {
		want = 100 * time.Millisecond
	}
	assert.Equal(t, want, readTimeout())
}

func TestTransport_DriverRoundTrip(t *testing.T) {
	t.Parallel()

	configs := map[string]virt.JitterConfig{
		"clean":        {},
		"fragmented":   virt.DefaultJitterConfig(),
		"usb_boundary": {USBBoundaryStress: true, FragmentReads: true, FragmentMinBytes: 3, Seed: 11},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			sim := virt.NewVirtualPN532()
			tag := virt.NewVirtualNTAG215(nil)
			sim.AddTag(tag)
			tr := newTransport(newMockPort(sim, cfg), "mock")
			require.NoError(t, tr.Wakeup())

			dev, err := pn532.New(tr, pn532.WithClock(virt.NewFakeClock()))
			require.NoError(t, err)
			ctx := context.Background()
			require.NoError(t, dev.Init(ctx))

			target, ok, err := dev.ReadPassiveTarget(ctx, pn532.BaudISO14443A, 0)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tag.UID, target.UID)

			ok, err = dev.NTAGWritePage(ctx, 6, []byte{1, 2, 3, 4})
			require.NoError(t, err)
			require.True(t, ok)

			page, ok, err := dev.NTAGReadPage(ctx, 6)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte{1, 2, 3, 4}, page)
		})
	}
}

func TestTransport_Wakeup(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	port := newMockPort(sim, virt.JitterConfig{})
	tr := newTransport(port, "mock")

	require.NoError(t, tr.Wakeup())
	assert.Equal(t, 1, sim.WakeupCount())
	require.Len(t, port.written, 1)
	assert.Len(t, port.written[0], 15)
	assert.Equal(t, []byte{0x55, 0x55, 0x00}, port.written[0][:3])
	assert.Equal(t, 1, port.drains)
}

func TestTransport_ReadStopsAtFrameEnd(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	tr := newTransport(newMockPort(sim, virt.DefaultJitterConfig()), "mock")

	require.NoError(t, tr.Write(firmwareFrame))
	ready, err := tr.Ready()
	require.NoError(t, err)
	require.True(t, ready)

	ack, err := tr.Read(6)
	require.NoError(t, err)
	assert.Equal(t, ackFrame, ack)

	// asking for more than the frame holds returns just the frame
	resp, err := tr.Read(64)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x06, 0xFA, 0xD5, 0x03, 0x32, 0x01, 0x06, 0x07, 0xE8, 0x00}, resp)

	ready, err = tr.Ready()
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestTransport_ReadTimesOutShort(t *testing.T) {
	t.Parallel()

	tr := newTransport(newMockPort(virt.NewVirtualPN532(), virt.JitterConfig{}), "mock")
	data, err := tr.Read(6)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestTransport_WriteDiscardsStaleInput(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	port := newMockPort(sim, virt.JitterConfig{})
	tr := newTransport(port, "mock")

	require.NoError(t, tr.Write(firmwareFrame))
	ready, err := tr.Ready()
	require.NoError(t, err)
	require.True(t, ready)

	// response left unread; the next command starts clean
	require.NoError(t, tr.Write(firmwareFrame))
	assert.Equal(t, 2, port.resets)
	ack, err := tr.Read(6)
	require.NoError(t, err)
	assert.Equal(t, ackFrame, ack)
}

func TestTransport_NoResponse(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	sim.InjectFault(virt.FaultDropResponse)
	tr := newTransport(newMockPort(sim, virt.JitterConfig{}), "mock")

	dev, err := pn532.New(tr, pn532.WithClock(virt.NewFakeClock()))
	require.NoError(t, err)
	_, ok, err := dev.GeneralStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_ShortWrite(t *testing.T) {
	t.Parallel()

	port := newMockPort(virt.NewVirtualPN532(), virt.JitterConfig{})
	port.shortWrite = true
	tr := newTransport(port, "mock")

	err := tr.Write(firmwareFrame)
	require.ErrorIs(t, err, pn532.ErrTransportWrite)
	assert.True(t, pn532.IsRetryable(err))
}

func TestTransport_DrainRetriesInterrupted(t *testing.T) {
	t.Parallel()

	port := newMockPort(virt.NewVirtualPN532(), virt.JitterConfig{})
	port.drainErrs = []error{syscall.EINTR, syscall.EINTR}
	tr := newTransport(port, "mock")
	require.NoError(t, tr.Wakeup())
	assert.Equal(t, 3, port.drains)

	port.drainErrs = []error{errors.New("device gone")}
	err := tr.Wakeup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wakeup drain failed")
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	port := newMockPort(virt.NewVirtualPN532(), virt.JitterConfig{})
	tr := newTransport(port, "mock")
	assert.Equal(t, pn532.TransportUART, tr.Type())

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, port.closed)

	require.ErrorIs(t, tr.Write(firmwareFrame), pn532.ErrTransportClosed)
	_, err := tr.Ready()
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
	_, err = tr.Read(1)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
}
