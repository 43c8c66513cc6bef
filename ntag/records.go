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
	"context"
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// ErrNoRecord is returned when a message has no record of the wanted kind.
var ErrNoRecord = errors.New("ntag: no matching record")

// uriPrefixes is the NFC Forum URI RTD abbreviation table.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// NewMessage builds a message from records, setting the begin and end
// flags.
func NewMessage(records ...*ndef.Record) *ndef.Message {
	for i, rec := range records {
		rec.SetMB(i == 0)
		rec.SetME(i == len(records)-1)
	}
	return &ndef.Message{Records: records}
}

// TextMessage is a message with one English text record.
func TextMessage(text string) *ndef.Message {
	return NewMessage(ndef.NewTextRecord(text, "en"))
}

// URIMessage is a message with one URI record. go-ndef abbreviates known
// scheme prefixes.
func URIMessage(uri string) *ndef.Message {
	return NewMessage(ndef.NewURIRecord(uri))
}

func wellKnownPayload(msg *ndef.Message, typ string) ([]byte, error) {
	if msg == nil {
		return nil, ErrNoRecord
	}
	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType || rec.Type() != typ {
			continue
		}
		payload, err := rec.Payload()
		if err != nil {
			return nil, fmt.Errorf("failed to get NDEF record payload: %w", err)
		}
		return payload.Marshal(), nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrNoRecord, typ)
}

// Text returns the first text record of msg.
func Text(msg *ndef.Message) (string, error) {
	payload, err := wellKnownPayload(msg, "T")
	if err != nil {
		return "", err
	}
	if len(payload) < 1 {
		return "", errors.New("text payload too short")
	}
	// status byte: bit 7 UTF-16, bits 0-5 language code length
	langLen := int(payload[0] & 0x3F)
	if payload[0]&0x80 != 0 {
		return "", errors.New("UTF-16 text records are not supported")
	}
	if len(payload) < 1+langLen {
		return "", errors.New("invalid text payload length")
	}
	return string(payload[1+langLen:]), nil
}

// URI returns the first URI record of msg with its prefix expanded.
func URI(msg *ndef.Message) (string, error) {
	payload, err := wellKnownPayload(msg, "U")
	if err != nil {
		return "", err
	}
	if len(payload) < 1 {
		return "", errors.New("URI payload too short")
	}
	code := int(payload[0])
	if code >= len(uriPrefixes) {
		return "", fmt.Errorf("invalid URI prefix code: %d", code)
	}
	return uriPrefixes[code] + string(payload[1:]), nil
}

// ReadText reads the card's NDEF message and returns its first text record.
func (t *Tag) ReadText(ctx context.Context) (string, error) {
	msg, err := t.ReadNDEF(ctx)
	if err != nil {
		return "", err
	}
	return Text(msg)
}

// WriteText replaces the card's NDEF message with a single text record.
func (t *Tag) WriteText(ctx context.Context, text string) error {
	return t.WriteNDEF(ctx, TextMessage(text))
}

// WriteURI replaces the card's NDEF message with a single URI record.
func (t *Tag) WriteURI(ctx context.Context, uri string) error {
	return t.WriteNDEF(ctx, URIMessage(uri))
}
