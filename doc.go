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

// Package pn532 drives an NXP PN532 NFC controller over a raw byte
// transport.
//
// A Device turns typed calls such as ReadPassiveTarget or MifareReadBlock
// into PN532 host frames, runs the write / ACK / response exchange and
// decodes the answer. Bus details (SPI bit order, the I2C status byte, UART
// wake-up preamble) live in the adapters under transport/.
//
// Every command returns an ok flag next to its result. ok is false with a
// nil error when the chip did not answer before the deadline; errors are
// reserved for things that went wrong on the wire or on the card:
//
//	dev, err := pn532.New(tr)
//	if err != nil { ... }
//	if err := dev.Init(ctx); err != nil { ... }
//
//	tgt, ok, err := dev.ReadPassiveTarget(ctx, pn532.BaudISO14443A, time.Second)
//	switch {
//	case err != nil:
//		// wire or device failure
//	case !ok:
//		// no card
//	default:
//		fmt.Println(tgt.UIDString())
//	}
//
// A Device is not safe for concurrent use; share one through a Guard.
package pn532
