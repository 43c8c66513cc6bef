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

// Sum adds all bytes of data modulo 256.
func Sum(data []byte) byte {
	var chk byte
	for _, b := range data {
		chk += b
	}
	return chk
}

// Checksum returns the two's complement of Sum(data), i.e. the byte that
// makes the total of data plus checksum zero modulo 256.
func Checksum(data []byte) byte {
	return ^Sum(data) + 1
}

// LengthChecksum returns the LCS byte for a frame length.
func LengthChecksum(length byte) byte {
	return ^length + 1
}
