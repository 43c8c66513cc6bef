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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	assert.True(t, ErrorCodeMifareAuth.Known())
	assert.Equal(t, "mifare authentication error", ErrorCodeMifareAuth.String())
	assert.Equal(t, "PN532 error 0x14 (mifare authentication error)", ErrorCodeMifareAuth.Error())

	unknown := ErrorCode(0x42)
	assert.False(t, unknown.Known())
	assert.Equal(t, "unrecognized error code", unknown.String())
}

func TestPN532Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		wantMsg     string
		code        ErrorCode
		wantUnknown bool
		auth        bool
		timeout     bool
	}{
		{
			name:    "auth",
			code:    ErrorCodeMifareAuth,
			wantMsg: "InDataExchange: error 0x14 (mifare authentication error): block 4",
			auth:    true,
		},
		{
			name:    "timeout",
			code:    ErrorCodeTimeout,
			wantMsg: "InDataExchange: error 0x01 (timeout): block 4",
			timeout: true,
		},
		{
			name:        "unknown",
			code:        ErrorCode(0x3A),
			wantMsg:     "InDataExchange: error 0x3A (unrecognized error code): block 4",
			wantUnknown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewPN532Error(tt.code, cmdInDataExchange, "block 4")
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.auth, err.IsAuthenticationError())
			assert.Equal(t, tt.timeout, err.IsTimeoutError())
			require.ErrorIs(t, err, tt.code)
			assert.Equal(t, tt.wantUnknown, errors.Is(err, ErrUnknownErrorCode))

			wrapped := fmt.Errorf("reading: %w", err)
			var pe *PN532Error
			require.ErrorAs(t, wrapped, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkStatus(cmdInRelease, 0x00))
	err := checkStatus(cmdInRelease, 0x27)
	require.ErrorIs(t, err, ErrorCodeContext)
	assert.Contains(t, err.Error(), "InRelease")
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	base := errors.New("broken pipe")
	te := NewTransportError("write", "/dev/ttyUSB0", base, ErrorTypeTransient)
	assert.Equal(t, "write /dev/ttyUSB0: broken pipe", te.Error())
	assert.True(t, te.Retryable)
	require.ErrorIs(t, te, base)

	te = NewTransportError("open", "", base, ErrorTypePermanent)
	assert.Equal(t, "open: broken pipe", te.Error())
	assert.False(t, te.Retryable)

	assert.True(t, NewTransportError("read", "", base, ErrorTypeTimeout).Retryable)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "missing_ack", err: ErrMissingAck, want: true},
		{name: "nack", err: ErrNACKReceived, want: true},
		{name: "length_checksum", err: ErrLengthChecksum, want: true},
		{name: "payload_checksum", err: fmt.Errorf("x: %w", ErrPayloadChecksum), want: true},
		{name: "truncated", err: ErrFrameTruncated, want: true},
		{name: "preamble", err: ErrMalformedPreamble, want: true},
		{name: "echo", err: ErrUnexpectedEcho, want: false},
		{name: "syntax", err: ErrSyntaxError, want: false},
		{name: "invalid_parameter", err: ErrInvalidParameter, want: false},
		{name: "card_timeout", err: NewPN532Error(ErrorCodeTimeout, cmdInDataExchange, ""), want: true},
		{name: "crc", err: NewPN532Error(ErrorCodeCRC, cmdInDataExchange, ""), want: true},
		{name: "auth", err: NewPN532Error(ErrorCodeMifareAuth, cmdInDataExchange, ""), want: false},
		{name: "transient_transport", err: NewTransportError("read", "", io.ErrUnexpectedEOF, ErrorTypeTransient), want: true},
		{name: "permanent_transport", err: NewTransportError("open", "", io.ErrUnexpectedEOF, ErrorTypePermanent), want: false},
		{name: "traced", err: NewTraceBuffer("spi", 2).WrapError(ErrMissingAck), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed", err: ErrTransportClosed, want: true},
		{name: "not_detected", err: fmt.Errorf("init: %w", ErrDeviceNotDetected), want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "closed_pipe", err: io.ErrClosedPipe, want: true},
		{name: "eio", err: syscall.EIO, want: true},
		{name: "enodev", err: fmt.Errorf("read: %w", syscall.ENODEV), want: true},
		{name: "eagain", err: syscall.EAGAIN, want: false},
		{name: "permanent_transport", err: NewTransportError("open", "", errors.New("x"), ErrorTypePermanent), want: true},
		{name: "transient_transport", err: NewTransportError("read", "", errors.New("x"), ErrorTypeTransient), want: false},
		{name: "missing_ack", err: ErrMissingAck, want: false},
		{name: "no_card", err: NewPN532Error(ErrorCodeNoCard, cmdInDataExchange, ""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestIsNoCardError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNoCardError(NewPN532Error(ErrorCodeNoCard, cmdInDataExchange, "")))
	assert.True(t, IsNoCardError(NewPN532Error(ErrorCodeCardSwapped, cmdInDataExchange, "")))
	assert.False(t, IsNoCardError(NewPN532Error(ErrorCodeTimeout, cmdInDataExchange, "")))
	assert.False(t, IsNoCardError(nil))
}

func TestTraceBuffer(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", 3)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return fixed }

	tb.RecordTX([]byte{0x01}, "one")
	tb.RecordRX([]byte{0x02}, "two")
	tb.RecordTimeout("three")
	tb.RecordTX([]byte{0x04}, "four")

	entries := tb.Entries()
	require.Len(t, entries, 3, "oldest entry is evicted")
	assert.Equal(t, "two", entries[0].Note)
	assert.Equal(t, "TIMEOUT: three", entries[1].Note)
	assert.Nil(t, entries[1].Data)
	assert.Equal(t, TraceTX, entries[2].Direction)
	assert.Equal(t, "[12:00:00.000] TX: 04 (four)", entries[2].String())

	require.NoError(t, tb.WrapError(nil))

	err := tb.WrapError(ErrMissingAck)
	require.ErrorIs(t, err, ErrMissingAck)
	assert.Equal(t, ErrMissingAck.Error(), err.Error())

	te := GetTrace(fmt.Errorf("outer: %w", err))
	require.NotNil(t, te)
	assert.Equal(t, "uart", te.Transport)
	assert.Equal(t, "[uart] Wire trace (3 entries):\n"+
		"  < 02 (two)\n"+
		"  < (empty) (TIMEOUT: three)\n"+
		"  > 04 (four)\n", te.FormatTrace())

	assert.Nil(t, GetTrace(ErrMissingAck))
}

func TestTraceBuffer_CopiesData(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("spi", 0)
	data := []byte{0xAA}
	tb.RecordTX(data, "")
	data[0] = 0xBB
	assert.Equal(t, []byte{0xAA}, tb.Entries()[0].Data)
}

func TestTraceableError_EmptyTrace(t *testing.T) {
	t.Parallel()

	te := &TraceableError{Err: ErrMissingAck, Transport: "i2c"}
	assert.Equal(t, "[i2c] (no trace data)", te.FormatTrace())
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "00 FF 0A", formatHexBytes([]byte{0x00, 0xFF, 0x0A}))

	long := formatHexBytes(make([]byte, 40))
	assert.Contains(t, long, "... (40 bytes total)")
}
