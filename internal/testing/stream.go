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

import "io"

// uartWakeByte is the 0x55 preamble a host sends over HSU to wake the chip.
const uartWakeByte = 0x55

type stream struct {
	v *VirtualPN532
}

// Stream returns the simulator as a serial byte stream. Writes may split
// or join frames arbitrarily; a leading 0x55 preamble counts as a wake-up.
// Reads drain queued output and return 0, nil when there is none, like a
// serial port whose read timeout expired.
func (v *VirtualPN532) Stream() io.ReadWriter {
	return &stream{v: v}
}

func (s *stream) Write(p []byte) (int, error) {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrClosed
	}
	v.streamIn = append(v.streamIn, p...)
	for {
		if !v.nextStreamFrame() {
			break
		}
	}
	return len(p), nil
}

// nextStreamFrame consumes one complete frame from streamIn. Caller holds
// mu.
func (v *VirtualPN532) nextStreamFrame() bool {
	start := -1
	for i := 0; i+1 < len(v.streamIn); i++ {
		if v.streamIn[i] == 0x00 && v.streamIn[i+1] == 0xFF {
			start = i
			break
		}
	}
	if start < 0 {
		// a trailing 0x00 may be the first half of a start code
		keep := 0
		if n := len(v.streamIn); n > 0 && v.streamIn[n-1] == 0x00 {
			keep = 1
		}
		v.skipPreamble(len(v.streamIn) - keep)
		return false
	}
	v.skipPreamble(start)

	// 00 FF LEN LCS
	if len(v.streamIn) < 4 {
		return false
	}
	length, lcs := v.streamIn[2], v.streamIn[3]
	total := 4 + int(length) + 2
	switch {
	case length == 0x00 && lcs == 0xFF, length == 0xFF && lcs == 0x00:
		// ACK or NACK: 00 FF LEN LCS 00
		total = 5
	}
	if len(v.streamIn) < total {
		return false
	}

	raw := append([]byte{0x00}, v.streamIn[:total]...)
	v.streamIn = v.streamIn[total:]
	v.receiveFrame(raw)
	v.drainPending()
	return true
}

// skipPreamble drops n leading bytes, waking the chip if they carry the
// HSU wake-up sequence.
func (v *VirtualPN532) skipPreamble(n int) {
	for _, b := range v.streamIn[:n] {
		if b == uartWakeByte {
			v.wakeups++
			v.state.PowerMode = PowerModeNormal
			break
		}
	}
	v.streamIn = v.streamIn[n:]
}

// drainPending moves queued frames into the serial output buffer.
func (v *VirtualPN532) drainPending() {
	for _, f := range v.pending {
		v.streamOut = append(v.streamOut, f...)
	}
	v.pending = nil
}

func (s *stream) Read(p []byte) (int, error) {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrClosed
	}
	n := copy(p, v.streamOut)
	v.streamOut = v.streamOut[n:]
	return n, nil
}
