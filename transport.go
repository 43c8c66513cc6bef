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

import "time"

// Transport is the raw byte capability a bus adapter gives the driver.
// Adapters deal with chip select, bit order and bus-specific status bytes;
// the driver deals with frames, ACKs and command semantics.
//
// Implementations are used from one goroutine at a time.
type Transport interface {
	// Write sends one complete frame to the device.
	Write(data []byte) error

	// Read returns up to n bytes of the pending device output. Adapters
	// that cannot tell where a frame ends return exactly n bytes.
	Read(n int) ([]byte, error)

	// Transfer performs a full-duplex exchange and returns len(tx) bytes.
	Transfer(tx []byte) ([]byte, error)

	// Ready reports the device status signal: true once the PN532 has
	// output (an ACK or a response frame) waiting.
	Ready() (bool, error)

	// Wakeup sends the bus-specific idle-break signal.
	Wakeup() error

	// Close releases the bus.
	Close() error
}

// TransportType identifies the bus an adapter drives.
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a simulated device
	TransportMock TransportType = "mock"
)

// TypedTransport is implemented by adapters that report their bus type.
// It is optional; the driver only uses it to label wire traces.
type TypedTransport interface {
	Type() TransportType
}

func transportLabel(t Transport) string {
	if typed, ok := t.(TypedTransport); ok {
		return string(typed.Type())
	}
	return "transport"
}

// Clock supplies time to the ready-polling loop. Tests substitute a fake
// that advances on Sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
