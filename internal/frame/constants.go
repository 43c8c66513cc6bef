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

package frame

// Frame direction identifiers (TFI)
const (
	HostToPN532   = 0xD4 // Commands from host to PN532
	PN532ToHost   = 0xD5 // Responses from PN532 to host
	ErrorFrameTFI = 0x7F // Application level syntax error
)

// Frame markers
const (
	Preamble   = 0x00
	StartCode1 = 0x00
	StartCode2 = 0xFF
	Postamble  = 0x00
)

// Frame size limits
const (
	// Overhead is the number of bytes a normal information frame adds around
	// its payload: preamble, start code (2), LEN, LCS, DCS and postamble.
	Overhead = 7

	// MaxPayload is the largest payload a normal information frame can carry.
	MaxPayload = 254

	// AckLength is the size of an ACK or NACK frame on the wire.
	AckLength = 6
)

// ACK and NACK frames used for flow control
var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)
