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

// FirmwareVersion contains PN532 firmware information
type FirmwareVersion struct {
	IC       byte // 0x32 for a PN532
	Version  byte
	Revision byte
	Support  byte // bit 0 ISO14443A, bit 1 ISO14443B, bit 2 ISO18092
}

// SupportsISO14443A reports Type A (Mifare/NTAG) support
func (f FirmwareVersion) SupportsISO14443A() bool { return f.Support&0x01 != 0 }

// SupportsISO14443B reports Type B support
func (f FirmwareVersion) SupportsISO14443B() bool { return f.Support&0x02 != 0 }

// SupportsISO18092 reports NFCIP-1 (peer-to-peer) support
func (f FirmwareVersion) SupportsISO18092() bool { return f.Support&0x04 != 0 }

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d (support 0x%02X)", f.IC, f.Version, f.Revision, f.Support)
}

// FirmwareVersion queries the chip's firmware version. A device that does
// not answer yields ErrDeviceNotDetected rather than a plain timeout.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	resp, ok, err := d.call(ctx, cmdGetFirmwareVersion, nil, 4, firmwareTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeviceNotDetected
	}
	if len(resp) < 4 {
		return nil, fmt.Errorf("%w: firmware version has %d bytes", ErrShortResponse, len(resp))
	}

	fw := &FirmwareVersion{
		IC:       resp[0],
		Version:  resp[1],
		Revision: resp[2],
		Support:  resp[3],
	}
	d.firmware = fw
	return fw, nil
}

// TargetStatus describes one target the PN532 is handling
type TargetStatus struct {
	Number   byte
	BaudRx   byte
	BaudTx   byte
	Modulate byte
}

// GeneralStatus contains PN532 general status information
type GeneralStatus struct {
	Targets      []TargetStatus
	LastError    ErrorCode
	SAMStatus    byte
	FieldPresent bool
}

// GeneralStatus reads the chip's current state: last error, external RF
// field and the targets currently handled.
func (d *Device) GeneralStatus(ctx context.Context) (*GeneralStatus, bool, error) {
	// Err, Field, NbTg, two 4-byte target blocks, SAM status
	resp, ok, err := d.call(ctx, cmdGetGeneralStatus, nil, 12, 0)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(resp) < 3 {
		return nil, true, fmt.Errorf("%w: general status has %d bytes", ErrShortResponse, len(resp))
	}

	status := &GeneralStatus{
		LastError:    ErrorCode(resp[0]),
		FieldPresent: resp[1] != 0,
	}
	count := int(resp[2])
	off := 3
	for range count {
		if off+4 > len(resp) {
			return nil, true, fmt.Errorf("%w: general status lists %d targets", ErrShortResponse, count)
		}
		status.Targets = append(status.Targets, TargetStatus{
			Number:   resp[off],
			BaudRx:   resp[off+1],
			BaudTx:   resp[off+2],
			Modulate: resp[off+3],
		})
		off += 4
	}
	if off < len(resp) {
		status.SAMStatus = resp[off]
	}
	return status, true, nil
}
