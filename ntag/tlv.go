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

package ntag

import (
	"encoding/binary"
	"errors"
)

// TLV block types found in NTAG user memory
const (
	tlvNull          = 0x00
	tlvLockControl   = 0x01
	tlvMemoryControl = 0x02
	tlvNDEF          = 0x03
	tlvTerminator    = 0xFE
	tlvLongLength    = 0xFF
)

// errNeedMore means the TLV chain continues past the bytes read so far.
var errNeedMore = errors.New("ntag: TLV data too short")

type tlvLocation struct {
	Offset int
	Length int
}

func (l tlvLocation) end() int { return l.Offset + l.Length }

// tlvLength decodes the length field at data[i]: one byte, or 0xFF and a
// big-endian uint16. It returns the length and the header size.
func tlvLength(data []byte, i int) (length, header int, err error) {
	if i+1 >= len(data) {
		return 0, 0, errNeedMore
	}
	if data[i+1] != tlvLongLength {
		return int(data[i+1]), 2, nil
	}
	if i+3 >= len(data) {
		return 0, 0, errNeedMore
	}
	return int(binary.BigEndian.Uint16(data[i+2 : i+4])), 4, nil
}

// findNDEF walks the TLV chain and locates the NDEF message TLV. Null TLVs
// are padding; lock, memory control and proprietary TLVs are skipped.
func findNDEF(data []byte) (tlvLocation, error) {
	i := 0
	for i < len(data) {
		switch data[i] {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return tlvLocation{}, ErrNoNDEF
		}

		length, header, err := tlvLength(data, i)
		if err != nil {
			return tlvLocation{}, err
		}
		if data[i] == tlvNDEF {
			return tlvLocation{Offset: i + header, Length: length}, nil
		}
		i += header + length
	}
	return tlvLocation{}, errNeedMore
}

// wrapTLV puts payload in an NDEF TLV, appends a terminator and pads to a
// whole page.
func wrapTLV(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	if len(payload) < tlvLongLength {
		out = append(out, tlvNDEF, byte(len(payload)))
	} else {
		out = append(out, tlvNDEF, tlvLongLength)
		out = binary.BigEndian.AppendUint16(out, uint16(len(payload)))
	}
	out = append(out, payload...)
	out = append(out, tlvTerminator)
	for len(out)%pageSize != 0 {
		out = append(out, tlvNull)
	}
	return out
}
