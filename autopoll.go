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

// AutoPollTarget defines the target type for InAutoPoll.
type AutoPollTarget byte

const (
	// AutoPollGeneric106kbps is the generic passive mode for ISO14443-4A, Mifare, DEP.
	AutoPollGeneric106kbps AutoPollTarget = 0x00
	// AutoPollGeneric212kbps is the generic passive mode for FeliCa, DEP.
	AutoPollGeneric212kbps AutoPollTarget = 0x01
	// AutoPollGeneric424kbps is the generic passive mode for FeliCa, DEP.
	AutoPollGeneric424kbps AutoPollTarget = 0x02
	// AutoPollISO14443B is for ISO14443-4B specific passive mode.
	AutoPollISO14443B AutoPollTarget = 0x03
	// AutoPollJewel is for Innovision Jewel tags.
	AutoPollJewel AutoPollTarget = 0x04
	// AutoPollMifare is for Mifare tags.
	AutoPollMifare AutoPollTarget = 0x10
	// AutoPollFeliCa212 is for FeliCa at 212 kbps.
	AutoPollFeliCa212 AutoPollTarget = 0x11
	// AutoPollFeliCa424 is for FeliCa at 424 kbps.
	AutoPollFeliCa424 AutoPollTarget = 0x12
	// AutoPollISO14443A is for ISO14443-4A.
	AutoPollISO14443A AutoPollTarget = 0x20
	// AutoPollISO14443B4 is for ISO14443-4B.
	AutoPollISO14443B4 AutoPollTarget = 0x23
)

// AutoPoll limits (User Manual §7.3.13)
const (
	AutoPollEndless   byte = 0xFF
	maxAutoPollTypes       = 15
	maxAutoPollPeriod      = 0x0F
)

// AutoPollResult is one target reported by InAutoPoll.
type AutoPollResult struct {
	TargetData []byte
	Type       AutoPollTarget
}

// IsTypeA reports whether the target data uses the 106 kbps type A layout.
func (a AutoPollResult) IsTypeA() bool {
	switch a.Type {
	case AutoPollGeneric106kbps, AutoPollMifare, AutoPollISO14443A:
		return true
	default:
		return false
	}
}

// Target decodes the target data of a type A result.
func (a AutoPollResult) Target() (*Target, error) {
	if !a.IsTypeA() {
		return nil, fmt.Errorf("%w: target type 0x%02X is not 106 kbps type A", ErrInvalidParameter, byte(a.Type))
	}
	return parseTypeATarget(a.TargetData)
}

// AutoPoll lets the PN532 poll by itself for any of types. pollNr is the
// number of polling rounds (AutoPollEndless for no limit) and period the
// pause between them in units of 150 ms. ok is false when no target was
// found or the chip did not answer within timeout.
func (d *Device) AutoPoll(
	ctx context.Context, pollNr, period byte, timeout time.Duration, types ...AutoPollTarget,
) ([]AutoPollResult, bool, error) {
	if pollNr == 0 {
		return nil, false, fmt.Errorf("%w: poll count must be at least 1", ErrInvalidParameter)
	}
	if period == 0 || period > maxAutoPollPeriod {
		return nil, false, fmt.Errorf("%w: poll period 0x%02X", ErrInvalidParameter, period)
	}
	if len(types) == 0 || len(types) > maxAutoPollTypes {
		return nil, false, fmt.Errorf("%w: %d target types", ErrInvalidParameter, len(types))
	}

	params := make([]byte, 0, 2+len(types))
	params = append(params, pollNr, period)
	for _, t := range types {
		params = append(params, byte(t))
	}

	resp, ok, err := d.call(ctx, cmdInAutoPoll, params, frameDataCapacity, timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(resp) == 0 {
		return nil, true, fmt.Errorf("%w: empty InAutoPoll response", ErrShortResponse)
	}
	if resp[0] == 0 {
		return nil, false, nil
	}

	results := make([]AutoPollResult, 0, resp[0])
	off := 1
	for range int(resp[0]) {
		if off+2 > len(resp) {
			return nil, true, fmt.Errorf("%w: InAutoPoll lists %d targets", ErrShortResponse, resp[0])
		}
		typ, n := AutoPollTarget(resp[off]), int(resp[off+1])
		off += 2
		if off+n > len(resp) {
			return nil, true, fmt.Errorf("%w: target data needs %d bytes", ErrShortResponse, n)
		}
		results = append(results, AutoPollResult{
			Type:       typ,
			TargetData: append([]byte(nil), resp[off:off+n]...),
		})
		off += n
	}
	return results, true, nil
}
