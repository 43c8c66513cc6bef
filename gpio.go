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
	"fmt"
)

// GPIO port indices, in the order ReadGPIO returns them
const (
	GPIOPortP3 = 0
	GPIOPortP7 = 1
	GPIOPortI  = 2
)

// gpioValidate marks a port byte in WriteGPIO as one the PN532 must apply.
// Ports sent without it keep their current value.
const gpioValidate = 0x80

// GPIOPin names one of the PN532's general purpose pins.
type GPIOPin byte

const (
	PinP30 GPIOPin = iota
	PinP31
	PinP32
	PinP33
	PinP34
	PinP35
	PinP71
	PinP72
	PinI0
	PinI1
)

var gpioPins = [...]struct {
	name string
	port int
	bit  byte
}{
	PinP30: {"P30", GPIOPortP3, 0},
	PinP31: {"P31", GPIOPortP3, 1},
	PinP32: {"P32", GPIOPortP3, 2},
	PinP33: {"P33", GPIOPortP3, 3},
	PinP34: {"P34", GPIOPortP3, 4},
	PinP35: {"P35", GPIOPortP3, 5},
	PinP71: {"P71", GPIOPortP7, 1},
	PinP72: {"P72", GPIOPortP7, 2},
	PinI0:  {"I0", GPIOPortI, 0},
	PinI1:  {"I1", GPIOPortI, 1},
}

// Valid reports whether p is a known pin.
func (p GPIOPin) Valid() bool { return int(p) < len(gpioPins) }

// Port returns the index of the port the pin belongs to, or -1 for an
// unknown pin.
func (p GPIOPin) Port() int {
	if !p.Valid() {
		return -1
	}
	return gpioPins[p].port
}

// Mask returns the pin's bit within its port. Unknown pins have no bit.
func (p GPIOPin) Mask() byte {
	if !p.Valid() {
		return 0
	}
	return 1 << gpioPins[p].bit
}

func (p GPIOPin) String() string {
	if !p.Valid() {
		return fmt.Sprintf("GPIOPin(%d)", byte(p))
	}
	return gpioPins[p].name
}

// ParseGPIOPin looks a pin up by name ("P30", "I1", ...).
func ParseGPIOPin(name string) (GPIOPin, error) {
	for i, pin := range gpioPins {
		if pin.name == name {
			return GPIOPin(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown GPIO pin %q", ErrInvalidParameter, name)
}

// GPIOState holds the raw P3, P7 and I port bytes.
type GPIOState [3]byte

// Pin reports the level of one pin in the snapshot.
func (s GPIOState) Pin(p GPIOPin) bool {
	if !p.Valid() {
		return false
	}
	return s[p.Port()]&p.Mask() != 0
}

// ReadGPIO returns the current level of all three ports.
func (d *Device) ReadGPIO(ctx context.Context) (GPIOState, bool, error) {
	var state GPIOState
	resp, ok, err := d.call(ctx, cmdReadGPIO, nil, 3, 0)
	if err != nil || !ok {
		return state, ok, err
	}
	if len(resp) < 3 {
		return state, true, fmt.Errorf("%w: GPIO state has %d bytes", ErrShortResponse, len(resp))
	}
	copy(state[:], resp)
	return state, true, nil
}

// PinState reads the level of a single pin.
func (d *Device) PinState(ctx context.Context, pin GPIOPin) (high, ok bool, err error) {
	if !pin.Valid() {
		return false, false, fmt.Errorf("%w: GPIO pin %d", ErrInvalidParameter, byte(pin))
	}
	state, ok, err := d.ReadGPIO(ctx)
	if err != nil || !ok {
		return false, ok, err
	}
	return state.Pin(pin), true, nil
}

// WriteGPIO sets the P3 and P7 ports. A zero byte goes out without the
// validation bit, so the device leaves that port as it is. The command is
// sent even when both are zero, and ok still means the device answered.
func (d *Device) WriteGPIO(ctx context.Context, p3, p7 byte) (bool, error) {
	v3, v7 := byte(0), byte(0)
	if p3 != 0 {
		v3 = gpioValidate | p3
	}
	if p7 != 0 {
		v7 = gpioValidate | p7
	}
	return d.writeGPIORaw(ctx, v3, v7)
}

// WritePin drives one output pin. The other bits of its port are read back
// first and preserved; the other port is left untouched. The I port is
// input only, so writing an I pin is a no-op that reports ok without
// contacting the device.
func (d *Device) WritePin(ctx context.Context, pin GPIOPin, high bool) (bool, error) {
	if !pin.Valid() {
		return false, fmt.Errorf("%w: GPIO pin %d", ErrInvalidParameter, byte(pin))
	}
	if pin.Port() == GPIOPortI {
		return true, nil
	}

	state, ok, err := d.ReadGPIO(ctx)
	if err != nil || !ok {
		return ok, err
	}

	port := state[pin.Port()]
	if high {
		port |= pin.Mask()
	} else {
		port &^= pin.Mask()
	}

	// the validation bit is always set on the target port so that clearing
	// its last high pin still reaches the device
	var out [2]byte
	out[pin.Port()] = gpioValidate | port
	return d.writeGPIORaw(ctx, out[GPIOPortP3], out[GPIOPortP7])
}

func (d *Device) writeGPIORaw(ctx context.Context, v3, v7 byte) (bool, error) {
	_, ok, err := d.call(ctx, cmdWriteGPIO, []byte{v3, v7}, 0, 0)
	return ok, err
}
