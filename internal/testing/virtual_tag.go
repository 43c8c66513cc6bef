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

package testing

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
)

// TagType selects the memory layout of a VirtualTag.
type TagType string

const (
	TagNTAG213  TagType = "NTAG213"
	TagNTAG215  TagType = "NTAG215"
	TagNTAG216  TagType = "NTAG216"
	TagMIFARE1K TagType = "MIFARE1K"
)

// Card commands understood inside InDataExchange
const (
	tagCmdRead       = 0x30
	tagCmdWrite      = 0xA0
	tagCmdPageWrite  = 0xA2
	tagCmdAuthA      = 0x60
	tagCmdAuthB      = 0x61
	tagCmdDecrement  = 0xC0
	tagCmdIncrement  = 0xC1
	tagCmdRestore    = 0xC2
	tagCmdTransfer   = 0xB0
	tagCmdGetVersion = 0x60 // NTAG only, shares the Key A opcode
)

const (
	pageSize      = 4
	blockSize     = 16
	mifareSectors = 16
)

// Common UIDs for tests
var (
	TestNTAG213UID  = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}
	TestMIFARE1KUID = []byte{0x12, 0x34, 0x56, 0x78}
)

// DefaultKey is the factory key of every simulated Mifare sector.
var DefaultKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// VirtualTag is a card in the simulator's field. NTAG memory is a flat
// array of 4-byte pages; Mifare Classic memory is 16-byte blocks guarded
// by per-sector keys.
type VirtualTag struct {
	keys        map[int][2][]byte
	Type        TagType
	UID         []byte
	memory      []byte
	authSector  int
	valueBuffer uint32
	valueLoaded bool
	Present     bool
}

// NewVirtualNTAG213 creates a 45-page NTAG213 with an empty NDEF TLV.
func NewVirtualNTAG213(uid []byte) *VirtualTag { return newNTAG(TagNTAG213, uid, 45, 0x12) }

// NewVirtualNTAG215 creates a 135-page NTAG215 with an empty NDEF TLV.
func NewVirtualNTAG215(uid []byte) *VirtualTag { return newNTAG(TagNTAG215, uid, 135, 0x3E) }

// NewVirtualNTAG216 creates a 231-page NTAG216 with an empty NDEF TLV.
func NewVirtualNTAG216(uid []byte) *VirtualTag { return newNTAG(TagNTAG216, uid, 231, 0x6D) }

func newNTAG(typ TagType, uid []byte, pages int, ccSize byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG213UID
	}
	t := &VirtualTag{
		Type:       typ,
		UID:        slices.Clone(uid),
		memory:     make([]byte, pages*pageSize),
		Present:    true,
		authSector: -1,
	}

	// pages 0-2: UID with check bytes, lock bytes
	var id [7]byte
	copy(id[:], uid)
	copy(t.memory[0:3], id[0:3])
	t.memory[3] = 0x88 ^ id[0] ^ id[1] ^ id[2]
	copy(t.memory[4:8], id[3:7])
	t.memory[8] = id[3] ^ id[4] ^ id[5] ^ id[6]
	t.memory[9] = 0x48

	// page 3: capability container, page 4: empty NDEF message
	copy(t.memory[12:16], []byte{0xE1, 0x10, ccSize, 0x00})
	copy(t.memory[16:20], []byte{0x03, 0x00, 0xFE, 0x00})
	return t
}

// NewVirtualMIFARE1K creates a Mifare Classic 1K with default keys.
func NewVirtualMIFARE1K(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestMIFARE1KUID
	}
	t := &VirtualTag{
		Type:       TagMIFARE1K,
		UID:        slices.Clone(uid),
		memory:     make([]byte, mifareSectors*4*blockSize),
		Present:    true,
		authSector: -1,
		keys:       make(map[int][2][]byte),
	}
	copy(t.memory, uid)
	for sector := range mifareSectors {
		trailer := t.memory[(sector*4+3)*blockSize:][:blockSize]
		copy(trailer[0:6], DefaultKey)
		copy(trailer[6:10], []byte{0xFF, 0x07, 0x80, 0x69})
		copy(trailer[10:16], DefaultKey)
		t.keys[sector] = [2][]byte{slices.Clone(DefaultKey), slices.Clone(DefaultKey)}
	}
	return t
}

// UIDString returns the UID as lowercase hex.
func (t *VirtualTag) UIDString() string {
	return hex.EncodeToString(t.UID)
}

// Remove takes the tag out of the field.
func (t *VirtualTag) Remove() { t.Present = false }

// Insert puts the tag back into the field.
func (t *VirtualTag) Insert() { t.Present = true }

// IsMIFARE reports whether the tag is a Mifare Classic.
func (t *VirtualTag) IsMIFARE() bool { return t.Type == TagMIFARE1K }

// Pages returns the number of NTAG pages, or 0 for a Mifare tag.
func (t *VirtualTag) Pages() int {
	if t.IsMIFARE() {
		return 0
	}
	return len(t.memory) / pageSize
}

// Page returns a copy of one NTAG page.
func (t *VirtualTag) Page(n int) []byte {
	return slices.Clone(t.memory[n*pageSize : (n+1)*pageSize])
}

// SetPage writes an NTAG page directly, bypassing protection.
func (t *VirtualTag) SetPage(n int, data []byte) {
	copy(t.memory[n*pageSize:(n+1)*pageSize], data)
}

// Block returns a copy of one Mifare block.
func (t *VirtualTag) Block(n int) []byte {
	return slices.Clone(t.memory[n*blockSize : (n+1)*blockSize])
}

// SetBlock writes a Mifare block directly, bypassing keys and protection.
func (t *VirtualTag) SetBlock(n int, data []byte) {
	copy(t.memory[n*blockSize:(n+1)*blockSize], data)
}

// SetSectorKeys replaces the keys of a Mifare sector.
func (t *VirtualTag) SetSectorKeys(sector int, keyA, keyB []byte) {
	t.keys[sector] = [2][]byte{slices.Clone(keyA), slices.Clone(keyB)}
}

// ResetAuthentication forgets the authenticated sector, as a new selection
// of the card does.
func (t *VirtualTag) ResetAuthentication() {
	t.authSector = -1
	t.valueLoaded = false
}

// IsAuthenticated reports whether sector is the authenticated one.
func (t *VirtualTag) IsAuthenticated(sector int) bool {
	return t.authSector == sector
}

func (t *VirtualTag) selectResponse() (atqa [2]byte, sak byte) {
	if t.IsMIFARE() {
		return [2]byte{0x00, 0x04}, 0x08
	}
	return [2]byte{0x00, 0x44}, 0x00
}

// Exchange runs one card command and returns the card's answer and the
// PN532 status byte the exchange produces.
func (t *VirtualTag) Exchange(cmd []byte) ([]byte, byte) {
	if !t.Present {
		return nil, statusTimeout
	}
	if len(cmd) == 0 {
		return nil, statusInvalid
	}
	if t.IsMIFARE() {
		return t.mifareCommand(cmd)
	}
	return t.ntagCommand(cmd)
}

func (t *VirtualTag) ntagCommand(cmd []byte) ([]byte, byte) {
	pages := t.Pages()
	switch cmd[0] {
	case tagCmdRead:
		if len(cmd) < 2 || int(cmd[1]) >= pages {
			return nil, statusTimeout
		}
		// four pages, rolling over to page 0 past the end
		out := make([]byte, 0, blockSize)
		for i := range 4 {
			out = append(out, t.Page((int(cmd[1])+i)%pages)...)
		}
		return out, statusOK
	case tagCmdPageWrite:
		page := 0
		if len(cmd) >= 2 {
			page = int(cmd[1])
		}
		if len(cmd) < 2+pageSize || page < 3 || page >= pages {
			return nil, statusTimeout
		}
		t.SetPage(page, cmd[2:2+pageSize])
		return nil, statusOK
	case tagCmdGetVersion:
		storage := byte(0x0F)
		switch t.Type {
		case TagNTAG215:
			storage = 0x11
		case TagNTAG216:
			storage = 0x13
		}
		return []byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, storage, 0x03}, statusOK
	default:
		return nil, statusTimeout
	}
}

func (t *VirtualTag) mifareCommand(cmd []byte) ([]byte, byte) {
	blocks := len(t.memory) / blockSize
	if len(cmd) < 2 || int(cmd[1]) >= blocks {
		return nil, statusTimeout
	}
	block := int(cmd[1])
	sector := block / 4
	trailer := block%4 == 3

	switch cmd[0] {
	case tagCmdAuthA, tagCmdAuthB:
		return nil, t.authenticate(cmd)
	}

	if t.authSector != sector {
		return nil, statusMifareAuth
	}

	switch cmd[0] {
	case tagCmdRead:
		out := t.Block(block)
		if trailer {
			// key A never reads back
			clear(out[0:6])
		}
		return out, statusOK
	case tagCmdWrite:
		if len(cmd) < 2+blockSize || block == 0 || trailer {
			return nil, statusTimeout
		}
		t.SetBlock(block, cmd[2:2+blockSize])
		return nil, statusOK
	case tagCmdIncrement, tagCmdDecrement, tagCmdRestore:
		if len(cmd) < 6 {
			return nil, statusTimeout
		}
		value, ok := decodeValue(t.Block(block))
		if !ok {
			return nil, statusTimeout
		}
		operand := binary.LittleEndian.Uint32(cmd[2:6])
		switch cmd[0] {
		case tagCmdIncrement:
			value += operand
		case tagCmdDecrement:
			value -= operand
		}
		t.valueBuffer = value
		t.valueLoaded = true
		return nil, statusOK
	case tagCmdTransfer:
		if !t.valueLoaded || block == 0 || trailer {
			return nil, statusTimeout
		}
		t.SetBlock(block, encodeValue(t.valueBuffer, byte(block)))
		t.valueLoaded = false
		return nil, statusOK
	default:
		return nil, statusTimeout
	}
}

// authenticate checks [keyType block key(6) uid...] against the sector keys.
func (t *VirtualTag) authenticate(cmd []byte) byte {
	if len(cmd) < 2+6+len(t.UID) {
		t.authSector = -1
		return statusMifareAuth
	}
	sector := int(cmd[1]) / 4
	keys, ok := t.keys[sector]
	idx := 0
	if cmd[0] == tagCmdAuthB {
		idx = 1
	}
	if !ok || !bytes.Equal(cmd[2:8], keys[idx]) || !bytes.Equal(cmd[8:8+len(t.UID)], t.UID) {
		t.authSector = -1
		return statusMifareAuth
	}
	t.authSector = sector
	t.valueLoaded = false
	return statusOK
}

// WriteValueBlock formats a Mifare block as a value block holding value.
func (t *VirtualTag) WriteValueBlock(block int, value int32) {
	t.SetBlock(block, encodeValue(uint32(value), byte(block)))
}

// ValueBlock decodes a Mifare value block.
func (t *VirtualTag) ValueBlock(block int) (int32, error) {
	v, ok := decodeValue(t.Block(block))
	if !ok {
		return 0, fmt.Errorf("block %d is not a value block", block)
	}
	return int32(v), nil
}

func encodeValue(v uint32, addr byte) []byte {
	b := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(b[0:], v)
	binary.LittleEndian.PutUint32(b[4:], ^v)
	binary.LittleEndian.PutUint32(b[8:], v)
	b[12], b[13], b[14], b[15] = addr, ^addr, addr, ^addr
	return b
}

func decodeValue(b []byte) (uint32, bool) {
	v := binary.LittleEndian.Uint32(b[0:])
	if binary.LittleEndian.Uint32(b[4:]) != ^v || binary.LittleEndian.Uint32(b[8:]) != v {
		return 0, false
	}
	return v, true
}
