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

// SAMMode represents the SAM configuration mode
type SAMMode byte

const (
	// SAMModeNormal - normal mode, the SAM is not used (default)
	SAMModeNormal SAMMode = 0x01
	// SAMModeVirtualCard - Virtual Card mode
	SAMModeVirtualCard SAMMode = 0x02
	// SAMModeWiredCard - Wired Card mode
	SAMModeWiredCard SAMMode = 0x03
	// SAMModeDualCard - Dual Card mode
	SAMModeDualCard SAMMode = 0x04
)

// SAMSettings is the SAMConfiguration parameter block
type SAMSettings struct {
	Mode SAMMode
	// Timeout in units of 50 ms, only meaningful in virtual card mode
	Timeout byte
	// UseIRQ lets the PN532 drive its P70_IRQ pin
	UseIRQ bool
}

// DefaultSAMSettings is normal mode, timeout 0x14 (1 s), IRQ pin in use.
var DefaultSAMSettings = SAMSettings{Mode: SAMModeNormal, Timeout: 0x14, UseIRQ: true}

// SAMConfig puts the SAM in normal mode with the default settings. It must
// succeed once after power-up before cards can be detected.
func (d *Device) SAMConfig(ctx context.Context) (bool, error) {
	return d.SAMConfigure(ctx, DefaultSAMSettings)
}

// SAMConfigure sends a SAMConfiguration command with explicit settings.
func (d *Device) SAMConfigure(ctx context.Context, s SAMSettings) (bool, error) {
	if s.Mode < SAMModeNormal || s.Mode > SAMModeDualCard {
		return false, fmt.Errorf("%w: SAM mode 0x%02X", ErrInvalidParameter, byte(s.Mode))
	}
	irq := byte(0x00)
	if s.UseIRQ {
		irq = 0x01
	}
	_, ok, err := d.call(ctx, cmdSAMConfiguration, []byte{byte(s.Mode), s.Timeout, irq}, 0, 0)
	return ok, err
}
