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

// Package frame builds and parses PN532 normal information frames.
//
// A frame on the wire is
//
//	PREAMBLE 00 FF LEN LCS TFI PD0 ... PDn DCS POSTAMBLE
//
// where LEN+LCS and TFI+PD0+...+PDn+DCS are both zero modulo 256. The
// package does no I/O.
package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Codec errors
var (
	ErrInvalidPayloadSize = errors.New("invalid frame payload size")
	ErrMalformedPreamble  = errors.New("response frame preamble does not contain 0x00FF")
	ErrLengthChecksum     = errors.New("response length checksum mismatch")
	ErrPayloadChecksum    = errors.New("response payload checksum mismatch")
	ErrFrameTruncated     = errors.New("response frame truncated")
)

// Encode wraps payload (TFI, command and parameters) in a normal
// information frame. The payload must be longer than one byte and shorter
// than 255 bytes.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) <= 1 || len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayloadSize, len(payload))
	}

	length := byte(len(payload))
	out := make([]byte, 0, len(payload)+Overhead)
	out = append(out, Preamble, StartCode1, StartCode2, length, LengthChecksum(length))
	out = append(out, payload...)
	out = append(out, Checksum(payload), Postamble)
	return out, nil
}

// Decode extracts the payload of the first frame in raw.
//
// Leading 0x00 bytes are skipped until the 0xFF start code. raw may extend
// past the end of the frame; bytes after the payload checksum are ignored.
// The returned slice does not alias raw.
func Decode(raw []byte) ([]byte, error) {
	off := 0
	for off < len(raw) && raw[off] == 0x00 {
		off++
	}
	if off >= len(raw) || raw[off] != StartCode2 {
		return nil, ErrMalformedPreamble
	}
	off++

	if off+2 > len(raw) {
		return nil, fmt.Errorf("%w: no length field", ErrFrameTruncated)
	}
	length := int(raw[off])
	if raw[off]+raw[off+1] != 0 {
		return nil, fmt.Errorf("%w: LEN=0x%02X LCS=0x%02X", ErrLengthChecksum, raw[off], raw[off+1])
	}
	off += 2

	// payload plus DCS
	if off+length+1 > len(raw) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrFrameTruncated, off+length+1, len(raw))
	}
	if sum := Sum(raw[off : off+length+1]); sum != 0 {
		return nil, fmt.Errorf("%w: residue 0x%02X", ErrPayloadChecksum, sum)
	}

	payload := make([]byte, length)
	copy(payload, raw[off:off+length])
	return payload, nil
}

// IsAck reports whether b starts with an ACK frame.
func IsAck(b []byte) bool {
	return bytes.HasPrefix(b, AckFrame)
}

// IsNack reports whether b starts with a NACK frame.
func IsNack(b []byte) bool {
	return bytes.HasPrefix(b, NackFrame)
}
