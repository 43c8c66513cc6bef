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

import "fmt"

// Type is an NTAG21x variant.
type Type uint8

// Variants
const (
	TypeUnknown Type = iota
	Type213
	Type215
	Type216
)

func (t Type) String() string {
	switch t {
	case Type213:
		return "NTAG213"
	case Type215:
		return "NTAG215"
	case Type216:
		return "NTAG216"
	default:
		return "NTAG (unknown)"
	}
}

// UserPages returns the first and last page of user memory. Unknown
// variants get the smallest layout.
func (t Type) UserPages() (start, end byte) {
	switch t {
	case Type215:
		return userStart, 129
	case Type216:
		return userStart, 225
	default:
		return userStart, 39
	}
}

// UserBytes is the size of user memory.
func (t Type) UserBytes() int {
	start, end := t.UserPages()
	return (int(end) - int(start) + 1) * pageSize
}

// Version is a GET_VERSION answer.
type Version struct {
	Vendor         byte
	ProductType    byte
	ProductSubtype byte
	Major          byte
	Minor          byte
	StorageSize    byte
	Protocol       byte
}

// Type maps the storage size byte to a variant. Non-NXP or non-NTAG
// answers are TypeUnknown.
func (v Version) Type() Type {
	if v.Vendor != 0x04 || v.ProductType != 0x04 {
		return TypeUnknown
	}
	switch v.StorageSize {
	case 0x0F:
		return Type213
	case 0x11:
		return Type215
	case 0x13:
		return Type216
	default:
		return TypeUnknown
	}
}

// StorageBytes decodes the storage size byte: 2^n bytes, or somewhere
// between 2^n and 2^(n+1) when the low bit is set.
func (v Version) StorageBytes() int {
	switch v.Type() {
	case Type213:
		return 144
	case Type215:
		return 504
	case Type216:
		return 888
	default:
		return 1 << (v.StorageSize >> 1)
	}
}

func (v Version) String() string {
	return fmt.Sprintf("vendor 0x%02X type 0x%02X v%d.%d storage 0x%02X",
		v.Vendor, v.ProductType, v.Major, v.Minor, v.StorageSize)
}

// typeFromCC guesses the variant from the CC size byte (user bytes / 8).
func typeFromCC(size byte) Type {
	switch {
	case size == 0x12:
		return Type213
	case size == 0x3E:
		return Type215
	case size == 0x6D:
		return Type216
	case size <= 0x20:
		return Type213
	case size <= 0x50:
		return Type215
	default:
		return Type216
	}
}
