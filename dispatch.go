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
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pn532-core/internal/frame"
)

const traceDepth = 16

// frameDataCapacity is the most command or response data one frame holds
// after the TFI and command code.
const frameDataCapacity = frame.MaxPayload - 2

// call runs one command through the PN532 host protocol:
//
//	write frame -> wait ready -> read ACK -> wait ready -> read response
//
// It returns the response data after the TFI and echo bytes. ok is false,
// with a nil error, when the device did not become ready within timeout at
// either wait. Protocol errors carry the wire trace of the exchange.
//
// ctx is only consulted before the frame is written; once the device has
// the command the exchange runs to completion or timeout.
func (d *Device) call(
	ctx context.Context, cmd byte, params []byte, respLen int, timeout time.Duration,
) (data []byte, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	if d.transport == nil {
		return nil, false, ErrTransportClosed
	}
	if timeout <= 0 {
		timeout = d.config.Timeout
	}

	payload := make([]byte, 0, len(params)+2)
	payload = append(payload, frame.HostToPN532, cmd)
	payload = append(payload, params...)
	raw, err := frame.Encode(payload)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", commandName(cmd), err)
	}

	trace := NewTraceBuffer(transportLabel(d.transport), traceDepth)
	trace.now = d.clock.Now
	trace.RecordTX(raw, commandName(cmd))
	Debugf("TX %s: % X", commandName(cmd), raw)

	if err := d.transport.Write(raw); err != nil {
		if wakeErr := d.transport.Wakeup(); wakeErr != nil {
			Debugf("wakeup after failed write: %v", wakeErr)
		}
		return nil, false, trace.WrapError(NewTransportError("write "+commandName(cmd), "", err, ErrorTypeTransient))
	}

	ready, err := d.waitReady(timeout)
	if err != nil {
		return nil, false, trace.WrapError(err)
	}
	if !ready {
		trace.RecordTimeout("ACK")
		Debugf("%s: no ACK within %v", commandName(cmd), timeout)
		return nil, false, nil
	}

	if err := d.readAck(trace); err != nil {
		return nil, false, trace.WrapError(fmt.Errorf("%s: %w", commandName(cmd), err))
	}

	ready, err = d.waitReady(timeout)
	if err != nil {
		return nil, false, trace.WrapError(err)
	}
	if !ready {
		trace.RecordTimeout("response")
		Debugf("%s: no response within %v", commandName(cmd), timeout)
		return nil, false, nil
	}

	resp, err := d.readResponse(cmd, respLen, trace)
	if err != nil {
		return nil, false, trace.WrapError(fmt.Errorf("%s: %w", commandName(cmd), err))
	}
	return resp, true, nil
}

// waitReady polls the device status until it reports ready or timeout
// elapses. The deadline is checked before every poll.
func (d *Device) waitReady(timeout time.Duration) (bool, error) {
	deadline := d.clock.Now().Add(timeout)
	for d.clock.Now().Before(deadline) {
		ready, err := d.transport.Ready()
		if err != nil {
			return false, NewTransportError("ready", "", err, ErrorTypeTransient)
		}
		if ready {
			return true, nil
		}
		d.clock.Sleep(d.config.PollInterval)
	}
	return false, nil
}

func (d *Device) readAck(trace *TraceBuffer) error {
	ack, err := d.transport.Read(frame.AckLength)
	if err != nil {
		return NewTransportError("read ACK", "", err, ErrorTypeTransient)
	}

	switch {
	case bytes.Equal(ack, frame.AckFrame):
		trace.RecordRX(ack, "ACK")
		return nil
	case frame.IsNack(ack):
		trace.RecordRX(ack, "NACK")
		return fmt.Errorf("%w: %w", ErrMissingAck, ErrNACKReceived)
	default:
		trace.RecordRX(ack, "invalid ACK")
		return fmt.Errorf("%w: got % X", ErrMissingAck, ack)
	}
}

func (d *Device) readResponse(cmd byte, respLen int, trace *TraceBuffer) ([]byte, error) {
	// +2 for the TFI and echo bytes
	raw, err := d.transport.Read(respLen + 2 + frame.Overhead)
	if err != nil {
		return nil, NewTransportError("read response", "", err, ErrorTypeTransient)
	}
	trace.RecordRX(raw, "response")
	Debugf("RX %s: % X", commandName(cmd), raw)

	payload, err := frame.Decode(raw)
	if err != nil {
		return nil, err
	}

	if len(payload) == 1 && payload[0] == frame.ErrorFrameTFI {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedEcho, ErrSyntaxError)
	}
	if len(payload) < 2 || payload[0] != frame.PN532ToHost || payload[1] != cmd+1 {
		return nil, fmt.Errorf("%w: expected D5 %02X, got % X", ErrUnexpectedEcho, cmd+1, payload[:min(len(payload), 2)])
	}
	return payload[2:], nil
}
