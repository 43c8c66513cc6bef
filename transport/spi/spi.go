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

// Package spi drives a PN532 over SPI through periph.io.
//
// The PN532 shifts bits LSB first; bytes are bit-reversed in software so
// any MSB-first controller works. Every transaction starts with one of
// three operation bytes: data write, status read or data read.
package spi

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	pn532 "github.com/ZaparooProject/go-pn532-core"
)

// SPI operation bytes (User Manual §6.2.5)
const (
	spiDataWrite = 0x01
	spiStatRead  = 0x02
	spiDataRead  = 0x03
	spiReady     = 0x01
)

const (
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0 // LSB first is handled by bit reversal
)

// Reset pulse timing
const (
	resetSettle = 100 * time.Millisecond
	resetLow    = 500 * time.Millisecond
)

// Option configures a Transport.
type Option func(*options)

type options struct {
	csPin    string
	resetPin string
	freq     physic.Frequency
}

// WithChipSelect drives chip select from a GPIO pin instead of the
// controller's hardware CS line.
func WithChipSelect(pin string) Option {
	return func(o *options) { o.csPin = pin }
}

// WithResetPin names the GPIO wired to the PN532 RSTPDN input.
func WithResetPin(pin string) Option {
	return func(o *options) { o.resetPin = pin }
}

// WithFrequency overrides the 1 MHz default clock.
func WithFrequency(f physic.Frequency) Option {
	return func(o *options) { o.freq = f }
}

// Transport is a raw PN532 SPI adapter
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	cs       gpio.PinOut
	reset    gpio.PinOut
	sleep    func(time.Duration)
	portName string
}

// New opens an SPI port by its periph registry name ("" for the first
// port) and connects at 1 MHz, mode 0.
func New(portName string, opts ...Option) (*Transport, error) {
	o := options{freq: defaultFreq}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, pn532.NewTransportError("open", portName, err, pn532.ErrorTypePermanent)
	}

	t, err := newTransport(port, portName, o.freq)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	if o.csPin != "" {
		if t.cs, err = lookupPin(o.csPin); err != nil {
			_ = port.Close()
			return nil, err
		}
		if err := t.cs.Out(gpio.High); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("chip select %s: %w", o.csPin, err)
		}
	}
	if o.resetPin != "" {
		if t.reset, err = lookupPin(o.resetPin); err != nil {
			_ = port.Close()
			return nil, err
		}
	}

	if err := t.start(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// start brings a freshly opened PN532 up: a reset pulse when a reset pin is
// configured, then the wakeup sequence.
func (t *Transport) start() error {
	if err := t.Reset(); err != nil {
		return err
	}
	return t.Wakeup()
}

func newTransport(port spi.PortCloser, name string, freq physic.Frequency) (*Transport, error) {
	conn, err := port.Connect(freq, mode, 8)
	if err != nil {
		return nil, pn532.NewTransportError("connect", name, err, pn532.ErrorTypePermanent)
	}
	return &Transport{
		port:     port,
		conn:     conn,
		portName: name,
		sleep:    time.Sleep,
	}, nil
}

func lookupPin(name string) (gpio.PinOut, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: unknown GPIO pin %q", pn532.ErrInvalidParameter, name)
	}
	return p, nil
}

// reverseBit reverses the bits in a byte (LSB <-> MSB)
func reverseBit(b byte) byte {
	var result byte
	for range 8 {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = reverseBit(b)
	}
	return out
}

// tx runs one transaction with chip select held low for its duration.
func (t *Transport) tx(w, r []byte) error {
	if t.port == nil {
		return pn532.ErrTransportClosed
	}
	if t.cs != nil {
		if err := t.cs.Out(gpio.Low); err != nil {
			return fmt.Errorf("chip select: %w", err)
		}
		defer func() { _ = t.cs.Out(gpio.High) }()
	}
	if err := t.conn.Tx(w, r); err != nil {
		return fmt.Errorf("%s: %w", t.portName, err)
	}
	return nil
}

// Write sends a frame prefixed by the data-write operation byte.
func (t *Transport) Write(data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reverseBit(spiDataWrite))
	w = append(w, reverseBytes(data)...)
	return t.tx(w, nil)
}

// Read clocks n bytes out of the PN532 after a data-read operation byte.
func (t *Transport) Read(n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = reverseBit(spiDataRead)
	r := make([]byte, n+1)
	if err := t.tx(w, r); err != nil {
		return nil, err
	}
	return reverseBytes(r[1:]), nil
}

// Transfer performs a raw full-duplex exchange.
func (t *Transport) Transfer(txData []byte) ([]byte, error) {
	r := make([]byte, len(txData))
	if err := t.tx(reverseBytes(txData), r); err != nil {
		return nil, err
	}
	return reverseBytes(r), nil
}

// Ready reads the status byte; bit 0 set means a frame is waiting.
func (t *Transport) Ready() (bool, error) {
	r := make([]byte, 2)
	if err := t.tx([]byte{reverseBit(spiStatRead), 0x00}, r); err != nil {
		return false, err
	}
	return reverseBit(r[1])&spiReady != 0, nil
}

// Wakeup pulls chip select low around a dummy byte, which wakes the PN532
// from power-down.
func (t *Transport) Wakeup() error {
	t.sleep(time.Millisecond)
	err := t.tx([]byte{0x00}, nil)
	t.sleep(time.Millisecond)
	return err
}

// Reset pulses the reset pin: high, low for 500 ms, high again. It is a
// no-op without a configured reset pin.
func (t *Transport) Reset() error {
	if t.reset == nil {
		return nil
	}
	for _, step := range []struct {
		level gpio.Level
		wait  time.Duration
	}{
		{gpio.High, resetSettle},
		{gpio.Low, resetLow},
		{gpio.High, resetSettle},
	} {
		if err := t.reset.Out(step.level); err != nil {
			return fmt.Errorf("reset pin: %w", err)
		}
		t.sleep(step.wait)
	}
	return nil
}

// Close closes the SPI port. Closing twice is not an error.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportSPI
}

var (
	_ pn532.Transport      = (*Transport)(nil)
	_ pn532.TypedTransport = (*Transport)(nil)
)
