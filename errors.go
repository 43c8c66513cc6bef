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
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-pn532-core/internal/frame"
)

// Protocol errors. These are surfaced to the caller and never retried by
// the driver itself.
var (
	ErrInvalidPayloadSize = frame.ErrInvalidPayloadSize
	ErrMalformedPreamble  = frame.ErrMalformedPreamble
	ErrLengthChecksum     = frame.ErrLengthChecksum
	ErrPayloadChecksum    = frame.ErrPayloadChecksum
	ErrFrameTruncated     = frame.ErrFrameTruncated

	ErrMissingAck     = errors.New("missing ACK")
	ErrNACKReceived   = errors.New("NACK received")
	ErrUnexpectedEcho = errors.New("unexpected command echo")
	ErrSyntaxError    = errors.New("device reported a syntax error frame")
)

// Command errors
var (
	ErrDeviceNotDetected = errors.New("PN532 not detected")
	ErrMultipleTargets   = errors.New("more than one card detected")
	ErrUIDTooLong        = errors.New("found card with unexpectedly long UID")
	ErrShortResponse     = errors.New("response shorter than expected")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrUnknownErrorCode  = errors.New("unknown device error code")
)

// Transport errors
var (
	ErrTransportRead   = errors.New("transport read failed")
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportClosed = errors.New("transport is closed")
)

// ErrorCode is the status byte a PN532 returns as the first data byte of
// many responses. Zero is success; the named constants below are the only
// failure codes the chip documents. Any other non-zero value is reported as
// an unrecognized code rather than being trusted or rejected outright.
type ErrorCode byte

// Device status codes (PN532 User Manual §7.1, Table 13)
const (
	ErrorCodeNone              ErrorCode = 0x00
	ErrorCodeTimeout           ErrorCode = 0x01
	ErrorCodeCRC               ErrorCode = 0x02
	ErrorCodeParity            ErrorCode = 0x03
	ErrorCodeCollisionBitCount ErrorCode = 0x04
	ErrorCodeMifareFraming     ErrorCode = 0x05
	ErrorCodeCollisionBit      ErrorCode = 0x06
	ErrorCodeNoBufs            ErrorCode = 0x07
	ErrorCodeRFNoBufs          ErrorCode = 0x09
	ErrorCodeActiveTooSlow     ErrorCode = 0x0A
	ErrorCodeRFProtocol        ErrorCode = 0x0B
	ErrorCodeTooHot            ErrorCode = 0x0D
	ErrorCodeInternalNoBufs    ErrorCode = 0x0E
	ErrorCodeInvalid           ErrorCode = 0x10
	ErrorCodeDEPInvalidCommand ErrorCode = 0x12
	ErrorCodeDEPBadData        ErrorCode = 0x13
	ErrorCodeMifareAuth        ErrorCode = 0x14
	ErrorCodeNoSecure          ErrorCode = 0x18
	ErrorCodeI2CBusy           ErrorCode = 0x19
	ErrorCodeUIDChecksum       ErrorCode = 0x23
	ErrorCodeDEPState          ErrorCode = 0x25
	ErrorCodeHCIInvalid        ErrorCode = 0x26
	ErrorCodeContext           ErrorCode = 0x27
	ErrorCodeReleased          ErrorCode = 0x29
	ErrorCodeCardSwapped       ErrorCode = 0x2A
	ErrorCodeNoCard            ErrorCode = 0x2B
	ErrorCodeMismatch          ErrorCode = 0x2C
	ErrorCodeOverCurrent       ErrorCode = 0x2D
	ErrorCodeNoNAD             ErrorCode = 0x2E
)

var errorCodeMeanings = map[ErrorCode]string{
	ErrorCodeNone:              "success",
	ErrorCodeTimeout:           "timeout",
	ErrorCodeCRC:               "CRC error",
	ErrorCodeParity:            "parity error",
	ErrorCodeCollisionBitCount: "erroneous bit count during anti-collision",
	ErrorCodeMifareFraming:     "framing error during mifare operation",
	ErrorCodeCollisionBit:      "abnormal bit collision",
	ErrorCodeNoBufs:            "communication buffer size insufficient",
	ErrorCodeRFNoBufs:          "RF buffer overflow",
	ErrorCodeActiveTooSlow:     "RF field not activated in time",
	ErrorCodeRFProtocol:        "RF protocol error",
	ErrorCodeTooHot:            "overheating",
	ErrorCodeInternalNoBufs:    "internal buffer overflow",
	ErrorCodeInvalid:           "invalid parameter",
	ErrorCodeDEPInvalidCommand: "DEP protocol: invalid command",
	ErrorCodeDEPBadData:        "DEP protocol: data format does not match",
	ErrorCodeMifareAuth:        "mifare authentication error",
	ErrorCodeNoSecure:          "target does not support secure transfer",
	ErrorCodeI2CBusy:           "I2C bus line busy",
	ErrorCodeUIDChecksum:       "UID check byte is wrong",
	ErrorCodeDEPState:          "DEP invalid state",
	ErrorCodeHCIInvalid:        "operation not allowed in this configuration",
	ErrorCodeContext:           "wrong context for command",
	ErrorCodeReleased:          "target released by initiator",
	ErrorCodeCardSwapped:       "card ID mismatch, card was swapped",
	ErrorCodeNoCard:            "card disappeared",
	ErrorCodeMismatch:          "NFCID3 initiator/target mismatch",
	ErrorCodeOverCurrent:       "over-current event",
	ErrorCodeNoNAD:             "NAD missing in DEP frame",
}

// Known reports whether c is one of the documented status codes.
func (c ErrorCode) Known() bool {
	_, ok := errorCodeMeanings[c]
	return ok
}

// String returns the human-readable meaning of the code.
func (c ErrorCode) String() string {
	if m, ok := errorCodeMeanings[c]; ok {
		return m
	}
	return "unrecognized error code"
}

// Error makes an ErrorCode usable as an errors.Is target:
//
//	errors.Is(err, pn532.ErrorCodeMifareAuth)
func (c ErrorCode) Error() string {
	return fmt.Sprintf("PN532 error 0x%02X (%s)", byte(c), c.String())
}

// PN532Error is a failure reported by the device itself through a non-zero
// status byte.
type PN532Error struct {
	Context string
	Command byte
	Code    ErrorCode
}

func (e *PN532Error) Error() string {
	base := fmt.Sprintf("%s: error 0x%02X (%s)", commandName(e.Command), byte(e.Code), e.Code.String())
	if e.Context != "" {
		base += ": " + e.Context
	}
	return base
}

// Unwrap exposes the status code, plus ErrUnknownErrorCode when the code is
// not a documented one.
func (e *PN532Error) Unwrap() []error {
	if e.Code.Known() {
		return []error{e.Code}
	}
	return []error{e.Code, ErrUnknownErrorCode}
}

// IsAuthenticationError returns true if the device rejected a Mifare key.
func (e *PN532Error) IsAuthenticationError() bool {
	return e.Code == ErrorCodeMifareAuth
}

// IsTimeoutError returns true if the device timed out talking to the card.
func (e *PN532Error) IsTimeoutError() bool {
	return e.Code == ErrorCodeTimeout
}

// NewPN532Error creates a device error for the given command.
func NewPN532Error(code ErrorCode, command byte, context string) *PN532Error {
	return &PN532Error{
		Code:    code,
		Command: command,
		Context: context,
	}
}

// checkStatus converts a status byte into nil or a *PN532Error.
func checkStatus(command, status byte) error {
	if status == byte(ErrorCodeNone) {
		return nil
	}
	return NewPN532Error(ErrorCode(status), command, "")
}

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps an error returned by a Transport with the operation
// that failed. The underlying error is preserved for errors.Is/As.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// IsRetryable returns true if a caller may reasonably repeat the operation.
// The driver never retries on its own.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var pe *PN532Error
	if errors.As(err, &pe) {
		return pe.IsTimeoutError() || pe.Code == ErrorCodeCRC || pe.Code == ErrorCodeParity
	}

	switch {
	case errors.Is(err, ErrMissingAck),
		errors.Is(err, ErrNACKReceived),
		errors.Is(err, ErrLengthChecksum),
		errors.Is(err, ErrPayloadChecksum),
		errors.Is(err, ErrFrameTruncated),
		errors.Is(err, ErrMalformedPreamble):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device or its connection
// is gone and polling should stop entirely.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotDetected),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors raised when a USB adapter is
// unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // only device-gone errnos matter
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // only device-gone errnos matter
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}

	return false
}

// IsAuthenticationError checks if an error is a Mifare authentication failure
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrorCodeMifareAuth)
}

// IsNoCardError reports whether the card left the field mid-operation.
func IsNoCardError(err error) bool {
	return errors.Is(err, ErrorCodeNoCard) || errors.Is(err, ErrorCodeCardSwapped)
}

// =============================================================================
// Wire Trace Logging
// =============================================================================
// TraceableError embeds the wire-level exchange of a failed command, so an
// application can show what was actually on the bus.

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates data sent to the PN532
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data received from the PN532
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single wire-level operation
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData)
}

// TraceableError wraps an error with wire-level trace data for debugging.
//
//	var te *pn532.TraceableError
//	if errors.As(err, &te) {
//	    log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s] (no trace data)", e.Transport)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s] Wire trace (%d entries):\n", e.Transport, len(e.Trace))
	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", direction, formatHexBytes(entry.Data), entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", direction, formatHexBytes(entry.Data))
		}
	}
	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values,
// truncated after 32 bytes.
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	const limit = 32
	shown := data
	if len(data) > limit {
		shown = data[:limit]
	}
	parts := make([]string, len(shown))
	for i, b := range shown {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	out := strings.Join(parts, " ")
	if len(data) > limit {
		out += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return out
}

// TraceBuffer collects the wire exchange of one command in a fixed-size
// ring, evicting the oldest entry when full.
type TraceBuffer struct {
	now       func() time.Time
	transport string
	entries   []TraceEntry
	maxSize   int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(transport string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
		transport: transport,
		now:       time.Now,
	}
}

// RecordTX records a transmission to the PN532
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records data received from the PN532
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a timeout event
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	entry := TraceEntry{
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Timestamp: tb.now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
		return
	}
	tb.entries = append(tb.entries, entry)
}

// Entries returns a copy of the recorded entries, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	return append([]TraceEntry(nil), tb.entries...)
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Trace:     tb.Entries(),
		Transport: tb.transport,
	}
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
