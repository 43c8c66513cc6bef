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

// Package ntag reads and writes NDEF messages on NTAG213/215/216 cards
// through a PN532.
//
// The NDEF message lives in a TLV (type 0x03) at the start of user memory,
// page 4. Messages are encoded and decoded with go-ndef.
package ntag

import (
	"context"
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// Card commands sent through InDataExchange
const (
	cmdGetVersion = 0x60
)

const (
	pageSize      = 4
	readSize      = 16 // a READ returns four pages
	pageCC        = 3
	userStart     = 4
	ccMagic       = 0xE1
	targetNumber  = 1
	versionLength = 8
)

// Errors
var (
	ErrNoResponse   = errors.New("ntag: card did not answer")
	ErrNotNTAG      = errors.New("ntag: invalid capability container")
	ErrNoNDEF       = errors.New("ntag: no NDEF message on card")
	ErrTooLarge     = errors.New("ntag: message does not fit in user memory")
	ErrTruncatedTLV = errors.New("ntag: NDEF TLV runs past user memory")
)

// Device is the part of *pn532.Device this package uses. The card must
// already be selected as target 1.
type Device interface {
	MifareReadBlock(ctx context.Context, block byte) ([]byte, bool, error)
	NTAGWritePage(ctx context.Context, page byte, data []byte) (bool, error)
	DataExchange(ctx context.Context, target byte, data []byte, respLen int) ([]byte, bool, error)
}

// Tag is an NTAG card in the field.
type Tag struct {
	dev Device
	typ Type
}

// New wraps dev. The variant is detected lazily on first use.
func New(dev Device) *Tag {
	return &Tag{dev: dev}
}

// Type returns the detected variant, or TypeUnknown before Detect.
func (t *Tag) Type() Type {
	return t.typ
}

func (t *Tag) read(ctx context.Context, page byte) ([]byte, error) {
	data, ok, err := t.dev.MifareReadBlock(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	if !ok {
		return nil, ErrNoResponse
	}
	return data, nil
}

// Version sends GET_VERSION.
func (t *Tag) Version(ctx context.Context) (*Version, error) {
	data, ok, err := t.dev.DataExchange(ctx, targetNumber, []byte{cmdGetVersion}, versionLength)
	if err != nil {
		return nil, fmt.Errorf("GET_VERSION: %w", err)
	}
	if !ok {
		return nil, ErrNoResponse
	}
	if len(data) < versionLength {
		return nil, fmt.Errorf("GET_VERSION: %d bytes", len(data))
	}
	return &Version{
		Vendor:         data[1],
		ProductType:    data[2],
		ProductSubtype: data[3],
		Major:          data[4],
		Minor:          data[5],
		StorageSize:    data[6],
		Protocol:       data[7],
	}, nil
}

// Detect checks the capability container and works out the variant from
// GET_VERSION. Clones that reject GET_VERSION fall back to the CC size
// field.
func (t *Tag) Detect(ctx context.Context) (Type, error) {
	block, err := t.read(ctx, pageCC)
	if err != nil {
		return TypeUnknown, err
	}
	cc := block[:min(pageSize, len(block))]
	if len(cc) < pageSize || cc[0] != ccMagic {
		return TypeUnknown, fmt.Errorf("%w: % X", ErrNotNTAG, cc)
	}

	t.typ = TypeUnknown
	if v, err := t.Version(ctx); err == nil {
		t.typ = v.Type()
	}
	if t.typ == TypeUnknown {
		t.typ = typeFromCC(cc[2])
	}
	return t.typ, nil
}

func (t *Tag) ensureDetected(ctx context.Context) error {
	if t.typ != TypeUnknown {
		return nil
	}
	_, err := t.Detect(ctx)
	return err
}

// ReadNDEF reads and decodes the NDEF message in user memory.
func (t *Tag) ReadNDEF(ctx context.Context) (*ndef.Message, error) {
	if err := t.ensureDetected(ctx); err != nil {
		return nil, err
	}
	limit := t.typ.UserBytes()

	var data []byte
	page := byte(userStart)
	for {
		loc, err := findNDEF(data)
		if err == nil && loc.end() <= len(data) {
			if loc.Length == 0 {
				return nil, ErrNoNDEF
			}
			msg := &ndef.Message{}
			if _, err := msg.Unmarshal(data[loc.Offset:loc.end()]); err != nil {
				return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
			}
			return msg, nil
		}
		if err != nil && !errors.Is(err, errNeedMore) {
			return nil, err
		}
		if len(data) >= limit {
			return nil, ErrTruncatedTLV
		}

		block, err := t.read(ctx, page)
		if err != nil {
			return nil, err
		}
		data = append(data, block...)
		data = data[:min(len(data), limit)]
		page += readSize / pageSize
	}
}

// WriteNDEF encodes msg into an NDEF TLV followed by a terminator and
// writes it from page 4 on.
func (t *Tag) WriteNDEF(ctx context.Context, msg *ndef.Message) error {
	if msg == nil || len(msg.Records) == 0 {
		return fmt.Errorf("%w: empty message", ErrNoNDEF)
	}
	if err := t.ensureDetected(ctx); err != nil {
		return err
	}

	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	data := wrapTLV(payload)
	if len(data) > t.typ.UserBytes() {
		return fmt.Errorf("%w: %d bytes, %s holds %d", ErrTooLarge, len(data), t.typ, t.typ.UserBytes())
	}

	for i := 0; i < len(data); i += pageSize {
		page := byte(userStart + i/pageSize)
		ok, err := t.dev.NTAGWritePage(ctx, page, data[i:i+pageSize])
		if err != nil {
			return fmt.Errorf("write page %d: %w", page, err)
		}
		if !ok {
			return ErrNoResponse
		}
	}
	return nil
}
