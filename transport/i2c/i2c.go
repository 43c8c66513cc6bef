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

// Package i2c drives a PN532 over I2C through periph.io.
//
// Every read from the PN532 starts with a status byte whose bit 0 tells
// whether a frame is ready; the adapter strips it before handing bytes to
// the driver.
package i2c

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	pn532 "github.com/ZaparooProject/go-pn532-core"
)

const (
	// PN532 7-bit I2C address (datasheet says 0x48, which is the 8-bit write
	// address including the R/W bit; periph.io and the Linux kernel expect the
	// 7-bit form: 0x48 >> 1 = 0x24).
	pn532Addr = 0x24

	pn532Ready = 0x01

	maxClockFreq = 400 * physic.KiloHertz
)

// Transport is a raw PN532 I2C adapter
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser
	busName string
}

// parseI2CPath extracts the bus path from a composite detection path.
// Accepts "/dev/i2c-1:0x24" (detection format) or "/dev/i2c-1" (bare bus).
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens an I2C bus and addresses the PN532 on it.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, pn532.NewTransportError("open", busName, err, pn532.ErrorTypePermanent)
	}
	return newTransport(bus, busName), nil
}

func newTransport(bus i2c.BusCloser, name string) *Transport {
	_ = bus.SetSpeed(maxClockFreq) // not every adapter can change speed
	return &Transport{
		dev:     &i2c.Dev{Addr: pn532Addr, Bus: bus},
		bus:     bus,
		busName: name,
	}
}

func (t *Transport) tx(w, r []byte) error {
	if t.dev == nil {
		return pn532.ErrTransportClosed
	}
	if err := t.dev.Tx(w, r); err != nil {
		return fmt.Errorf("%s: %w", t.busName, err)
	}
	return nil
}

// Write sends a frame in a single write transaction.
func (t *Transport) Write(data []byte) error {
	return t.tx(data, nil)
}

// Read reads n frame bytes. The leading status byte is checked and
// dropped.
func (t *Transport) Read(n int) ([]byte, error) {
	buf := make([]byte, n+1)
	if err := t.tx(nil, buf); err != nil {
		return nil, err
	}
	if buf[0]&pn532Ready == 0 {
		return nil, pn532.NewTransportError("read", t.busName,
			fmt.Errorf("%w: status byte 0x%02X", pn532.ErrTransportRead, buf[0]), pn532.ErrorTypeTransient)
	}
	return buf[1:], nil
}

// Transfer writes txData and then reads len(txData) bytes back, status
// byte included.
func (t *Transport) Transfer(txData []byte) ([]byte, error) {
	rx := make([]byte, len(txData))
	if err := t.tx(txData, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// Ready reads the status byte alone.
func (t *Transport) Ready() (bool, error) {
	status := make([]byte, 1)
	if err := t.tx(nil, status); err != nil {
		return false, err
	}
	return status[0]&pn532Ready != 0, nil
}

// Wakeup addresses the chip with an empty write; any I2C activity on its
// address brings it out of power-down.
func (t *Transport) Wakeup() error {
	if t.dev == nil {
		return pn532.ErrTransportClosed
	}
	// the chip NAKs while asleep
	_ = t.dev.Tx([]byte{0x00}, nil)
	return nil
}

// Close releases the bus file descriptor. Closing twice is not an error.
func (t *Transport) Close() error {
	if t.dev == nil {
		return nil
	}
	t.dev = nil
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("I2C close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

var (
	_ pn532.Transport      = (*Transport)(nil)
	_ pn532.TypedTransport = (*Transport)(nil)
)
