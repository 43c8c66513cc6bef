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
	"encoding/hex"
	"fmt"
	"time"
)

// BaudRate selects the modulation used by InListPassiveTarget
type BaudRate byte

const (
	// BaudISO14443A is 106 kbps type A (Mifare, NTAG)
	BaudISO14443A BaudRate = 0x00
	// BaudFeliCa212 is 212 kbps FeliCa
	BaudFeliCa212 BaudRate = 0x01
	// BaudFeliCa424 is 424 kbps FeliCa
	BaudFeliCa424 BaudRate = 0x02
	// BaudISO14443B is 106 kbps type B
	BaudISO14443B BaudRate = 0x03
	// BaudJewel is 106 kbps Innovision Jewel
	BaudJewel BaudRate = 0x04
)

// MaxUIDLength is the longest UID accepted from a passive target.
const MaxUIDLength = 7

// default target number assigned by the PN532 to the first card
const defaultTarget = 0x01

// Target is a card found by ReadPassiveTarget. The PN532 numbers targets
// from 1; with a single-card poll it is always 1.
type Target struct {
	UID    []byte
	ATQA   [2]byte
	Number byte
	SAK    byte
}

// UIDString returns the UID as lowercase hex
func (t *Target) UIDString() string {
	return hex.EncodeToString(t.UID)
}

// ReadPassiveTarget waits up to timeout for one card in the field and returns
// its UID. ok is false when no card answered in time, and also when the
// chip reports an empty field (NbTg = 0); neither is an error. More than one
// card in the field is ErrMultipleTargets; a UID longer than seven bytes is
// ErrUIDTooLong. The response is decoded with the 106 kbps type A layout.
func (d *Device) ReadPassiveTarget(ctx context.Context, baud BaudRate, timeout time.Duration) (*Target, bool, error) {
	resp, ok, err := d.call(ctx, cmdInListPassiveTarget, []byte{0x01, byte(baud)}, 19, timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(resp) == 0 {
		return nil, true, fmt.Errorf("%w: empty InListPassiveTarget response", ErrShortResponse)
	}

	// the chip answers NbTg=0 once its activation retries run out
	if resp[0] == 0 {
		return nil, false, nil
	}
	if resp[0] != 1 {
		return nil, true, fmt.Errorf("%w: %d targets", ErrMultipleTargets, resp[0])
	}
	target, err := parseTypeATarget(resp[1:])
	if err != nil {
		return nil, true, err
	}
	return target, true, nil
}

// parseTypeATarget decodes one 106 kbps type A target entry:
// Tg, SENS_RES (2), SEL_RES, NFCIDLength, NFCID1.
func parseTypeATarget(data []byte) (*Target, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: target data has %d bytes", ErrShortResponse, len(data))
	}

	uidLen := int(data[4])
	if uidLen > MaxUIDLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrUIDTooLong, uidLen)
	}
	if len(data) < 5+uidLen {
		return nil, fmt.Errorf("%w: UID needs %d bytes, have %d", ErrShortResponse, uidLen, len(data)-5)
	}

	return &Target{
		Number: data[0],
		ATQA:   [2]byte{data[1], data[2]},
		SAK:    data[3],
		UID:    append([]byte(nil), data[5:5+uidLen]...),
	}, nil
}

// Release ends communication with a target; target 0 releases all.
func (d *Device) Release(ctx context.Context, target byte) (bool, error) {
	resp, ok, err := d.call(ctx, cmdInRelease, []byte{target}, 1, 0)
	if err != nil || !ok {
		return ok, err
	}
	if len(resp) == 0 {
		return true, fmt.Errorf("%w: empty InRelease response", ErrShortResponse)
	}
	if err := checkStatus(cmdInRelease, resp[0]); err != nil {
		return false, err
	}
	return true, nil
}

// DataExchange sends data to an activated target and returns the card's
// answer. The leading status byte of the response is checked and stripped.
func (d *Device) DataExchange(ctx context.Context, target byte, data []byte, respLen int) ([]byte, bool, error) {
	params := make([]byte, 0, len(data)+1)
	params = append(params, target)
	params = append(params, data...)

	resp, ok, err := d.call(ctx, cmdInDataExchange, params, respLen+1, 0)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(resp) == 0 {
		return nil, true, fmt.Errorf("%w: missing InDataExchange status", ErrShortResponse)
	}
	if err := checkStatus(cmdInDataExchange, resp[0]); err != nil {
		return nil, true, err
	}
	return resp[1:], true, nil
}

// SetPassiveActivationRetries sets how many times InListPassiveTarget
// retries before answering with zero targets. 0xFF retries forever.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, maxRetries byte) (bool, error) {
	// CfgItem 0x05: MxRtyATR, MxRtyPSL, MxRtyPassiveActivation
	_, ok, err := d.call(ctx, cmdRFConfiguration, []byte{0x05, 0xFF, 0x01, maxRetries}, 0, 0)
	return ok, err
}

// SetRFField switches the antenna field on or off.
func (d *Device) SetRFField(ctx context.Context, on bool) (bool, error) {
	field := byte(0x00)
	if on {
		field = 0x01
	}
	_, ok, err := d.call(ctx, cmdRFConfiguration, []byte{0x01, field}, 0, 0)
	return ok, err
}

// PowerDown puts the chip in power-down mode. wakeupSources is a mask of
// the Wakeup* constants. Call Device.Wakeup before the next command.
func (d *Device) PowerDown(ctx context.Context, wakeupSources byte) (bool, error) {
	resp, ok, err := d.call(ctx, cmdPowerDown, []byte{wakeupSources}, 1, 0)
	if err != nil || !ok {
		return ok, err
	}
	if len(resp) == 0 {
		return true, fmt.Errorf("%w: empty PowerDown response", ErrShortResponse)
	}
	if err := checkStatus(cmdPowerDown, resp[0]); err != nil {
		return false, err
	}
	return true, nil
}
