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
	"encoding/binary"
	"fmt"
)

// Card memory sizes
const (
	MifareBlockSize = 16
	MifareKeySize   = 6
	NTAGPageSize    = 4
	maxCardUIDSize  = 10
)

// KeyType selects which sector key a Mifare Classic authentication uses.
// The values are the Mifare command bytes.
type KeyType byte

const (
	MifareKeyA KeyType = mifareCmdAuthA
	MifareKeyB KeyType = mifareCmdAuthB
)

// DefaultMifareKey is the factory transport key of Mifare Classic sectors.
var DefaultMifareKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// MifareAuthenticate authenticates block with key against the card whose
// UID was returned by ReadPassiveTarget. Keys are opaque to the driver; the
// crypto runs on the PN532. A rejected key is a *PN532Error with code
// ErrorCodeMifareAuth.
func (d *Device) MifareAuthenticate(
	ctx context.Context, uid []byte, block byte, keyType KeyType, key []byte,
) (bool, error) {
	if keyType != MifareKeyA && keyType != MifareKeyB {
		return false, fmt.Errorf("%w: key type 0x%02X", ErrInvalidParameter, byte(keyType))
	}
	if len(key) != MifareKeySize {
		return false, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidParameter, MifareKeySize, len(key))
	}
	if len(uid) == 0 || len(uid) > maxCardUIDSize {
		return false, fmt.Errorf("%w: UID length %d", ErrInvalidParameter, len(uid))
	}

	data := make([]byte, 0, 2+len(key)+len(uid))
	data = append(data, byte(keyType), block)
	data = append(data, key...)
	data = append(data, uid...)

	_, ok, err := d.DataExchange(ctx, defaultTarget, data, 0)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// MifareReadBlock reads one 16-byte block. Everything the card returned
// after the status byte is passed through unmodified.
func (d *Device) MifareReadBlock(ctx context.Context, block byte) ([]byte, bool, error) {
	return d.DataExchange(ctx, defaultTarget, []byte{mifareCmdRead, block}, MifareBlockSize)
}

// MifareWriteBlock writes exactly 16 bytes to block.
func (d *Device) MifareWriteBlock(ctx context.Context, block byte, data []byte) (bool, error) {
	if len(data) != MifareBlockSize {
		return false, fmt.Errorf("%w: block data must be %d bytes, got %d", ErrInvalidParameter, MifareBlockSize, len(data))
	}
	return d.exchangeStatus(ctx, append([]byte{mifareCmdWrite, block}, data...))
}

// NTAGReadPage reads one 4-byte NTAG2xx/Ultralight page. The card answers a
// read with four pages; only the first is returned.
func (d *Device) NTAGReadPage(ctx context.Context, page byte) ([]byte, bool, error) {
	data, ok, err := d.MifareReadBlock(ctx, page)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(data) < NTAGPageSize {
		return nil, true, fmt.Errorf("%w: page read returned %d bytes", ErrShortResponse, len(data))
	}
	return data[:NTAGPageSize], true, nil
}

// NTAGWritePage writes exactly 4 bytes to page with the Ultralight WRITE
// command.
func (d *Device) NTAGWritePage(ctx context.Context, page byte, data []byte) (bool, error) {
	if len(data) != NTAGPageSize {
		return false, fmt.Errorf("%w: page data must be %d bytes, got %d", ErrInvalidParameter, NTAGPageSize, len(data))
	}
	return d.exchangeStatus(ctx, append([]byte{mifareUltralightCmdWrite, page}, data...))
}

// MifareIncrement adds delta to the value block into the card's transfer
// buffer. MifareTransfer commits it.
func (d *Device) MifareIncrement(ctx context.Context, block byte, delta uint32) (bool, error) {
	return d.valueOperation(ctx, mifareCmdIncrement, block, delta)
}

// MifareDecrement subtracts delta from the value block into the transfer
// buffer.
func (d *Device) MifareDecrement(ctx context.Context, block byte, delta uint32) (bool, error) {
	return d.valueOperation(ctx, mifareCmdDecrement, block, delta)
}

// MifareRestore copies the value block into the transfer buffer.
func (d *Device) MifareRestore(ctx context.Context, block byte) (bool, error) {
	return d.valueOperation(ctx, mifareCmdStore, block, 0)
}

// MifareTransfer writes the transfer buffer to block.
func (d *Device) MifareTransfer(ctx context.Context, block byte) (bool, error) {
	return d.exchangeStatus(ctx, []byte{mifareCmdTransfer, block})
}

func (d *Device) valueOperation(ctx context.Context, op, block byte, operand uint32) (bool, error) {
	data := []byte{op, block, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(data[2:], operand)
	return d.exchangeStatus(ctx, data)
}

// exchangeStatus runs an InDataExchange whose only result is the status.
func (d *Device) exchangeStatus(ctx context.Context, data []byte) (bool, error) {
	_, ok, err := d.DataExchange(ctx, defaultTarget, data, 0)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// EncodeValueBlock builds a Mifare Classic value block: the value, its
// inverse and the value again, followed by the address byte pattern.
func EncodeValueBlock(value int32, addr byte) []byte {
	block := make([]byte, MifareBlockSize)
	v := uint32(value)
	binary.LittleEndian.PutUint32(block[0:4], v)
	binary.LittleEndian.PutUint32(block[4:8], ^v)
	binary.LittleEndian.PutUint32(block[8:12], v)
	block[12] = addr
	block[13] = ^addr
	block[14] = addr
	block[15] = ^addr
	return block
}

// DecodeValueBlock validates a value block and returns its value and
// address byte.
func DecodeValueBlock(block []byte) (value int32, addr byte, err error) {
	if len(block) != MifareBlockSize {
		return 0, 0, fmt.Errorf("%w: value block must be %d bytes", ErrInvalidParameter, MifareBlockSize)
	}
	v := binary.LittleEndian.Uint32(block[0:4])
	if binary.LittleEndian.Uint32(block[4:8]) != ^v || binary.LittleEndian.Uint32(block[8:12]) != v {
		return 0, 0, fmt.Errorf("%w: value copies disagree", ErrInvalidParameter)
	}
	if block[13] != ^block[12] || block[14] != block[12] || block[15] != ^block[12] {
		return 0, 0, fmt.Errorf("%w: address copies disagree", ErrInvalidParameter)
	}
	return int32(v), block[12], nil
}
