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
	"time"
)

// Target mode flags for TargetConfig.Mode
const (
	TargetModePassiveOnly byte = 0x01
	TargetModeDEPOnly     byte = 0x02
	TargetModePICCOnly    byte = 0x04
)

// maxTargetBytes bounds the general and historical byte blocks.
const maxTargetBytes = 48

// TargetConfig holds the TgInitAsTarget parameters the PN532 needs to
// emulate a card. The fixed-size blocks are sent as is.
type TargetConfig struct {
	// Mifare holds SENS_RES (2), NFCID1t (3) and SEL_RES (1)
	Mifare [6]byte
	// FeliCa holds NFCID2t (8), PAD (8) and system code (2)
	FeliCa [18]byte
	NFCID3 [10]byte
	// General bytes for ATR_RES; fewer than 48
	General []byte
	// Historical bytes for ATS; fewer than 48
	Historical []byte
	Mode       byte
}

// TargetActivation describes how an initiator activated the emulated target.
type TargetActivation struct {
	InitiatorCommand []byte
	Mode             byte
}

func (c TargetConfig) params() ([]byte, error) {
	if len(c.General) >= maxTargetBytes {
		return nil, fmt.Errorf("%w: %d general bytes", ErrInvalidParameter, len(c.General))
	}
	if len(c.Historical) >= maxTargetBytes {
		return nil, fmt.Errorf("%w: %d historical bytes", ErrInvalidParameter, len(c.Historical))
	}

	p := make([]byte, 0, 1+len(c.Mifare)+len(c.FeliCa)+len(c.NFCID3)+2+len(c.General)+len(c.Historical))
	p = append(p, c.Mode)
	p = append(p, c.Mifare[:]...)
	p = append(p, c.FeliCa[:]...)
	p = append(p, c.NFCID3[:]...)
	p = append(p, byte(len(c.General)))
	p = append(p, c.General...)
	p = append(p, byte(len(c.Historical)))
	p = append(p, c.Historical...)
	return p, nil
}

// InitAsTarget configures the PN532 as a target and waits up to timeout
// (DeviceConfig.TargetTimeout when zero) for an initiator to activate it.
func (d *Device) InitAsTarget(
	ctx context.Context, cfg TargetConfig, timeout time.Duration,
) (*TargetActivation, bool, error) {
	params, err := cfg.params()
	if err != nil {
		return nil, false, err
	}
	if timeout <= 0 {
		timeout = d.config.TargetTimeout
	}

	resp, ok, err := d.call(ctx, cmdTgInitAsTarget, params, 64, timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(resp) == 0 {
		return nil, true, fmt.Errorf("%w: empty TgInitAsTarget response", ErrShortResponse)
	}
	return &TargetActivation{
		Mode:             resp[0],
		InitiatorCommand: append([]byte(nil), resp[1:]...),
	}, true, nil
}

// TargetGetData returns the next block of data sent by the initiator.
func (d *Device) TargetGetData(ctx context.Context) ([]byte, bool, error) {
	resp, ok, err := d.call(ctx, cmdTgGetData, nil, frameDataCapacity, 0)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(resp) == 0 {
		return nil, true, fmt.Errorf("%w: missing TgGetData status", ErrShortResponse)
	}
	if err := checkStatus(cmdTgGetData, resp[0]); err != nil {
		return nil, true, err
	}
	return resp[1:], true, nil
}

// TargetSetData sends data back to the initiator.
func (d *Device) TargetSetData(ctx context.Context, data []byte) (bool, error) {
	if len(data) > frameDataCapacity {
		return false, fmt.Errorf("%w: %d bytes exceed one frame", ErrInvalidParameter, len(data))
	}
	resp, ok, err := d.call(ctx, cmdTgSetData, data, 1, 0)
	if err != nil || !ok {
		return ok, err
	}
	if len(resp) == 0 {
		return true, fmt.Errorf("%w: missing TgSetData status", ErrShortResponse)
	}
	if err := checkStatus(cmdTgSetData, resp[0]); err != nil {
		return false, err
	}
	return true, nil
}
