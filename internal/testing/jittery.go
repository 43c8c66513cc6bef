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

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures a JitteryConnection.
type JitterConfig struct {
	// MaxLatency is the upper bound of the random delay before each read
	MaxLatency time.Duration
	// FragmentMinBytes is the smallest fragment a read returns
	FragmentMinBytes int
	// Seed makes fragmentation reproducible; 0 picks a random seed
	Seed uint64
	// FragmentReads splits reads at random points
	FragmentReads bool
	// USBBoundaryStress splits reads at 64-byte USB packet boundaries
	USBBoundaryStress bool
}

// DefaultJitterConfig fragments every read down to single bytes at random,
// without added latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps a byte stream the way a USB-serial bridge (FTDI,
// CH340) delivers it: late and in arbitrary pieces. Data is buffered, so
// nothing is lost however it is split. Writes pass through unchanged.
type JitteryConnection struct {
	backend io.ReadWriter
	rng     *rand.Rand
	buf     []byte
	config  JitterConfig
	total   int
}

// NewJitteryConnection wraps backend.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)), //nolint:gosec // test jitter
	}
}

// Write passes data to the backend.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns a random-sized piece of the buffered backend data.
func (j *JitteryConnection) Read(p []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.buf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.buf = append(j.buf, tmp[:n]...)
	}

	n := min(len(j.buf), len(p))
	if j.config.USBBoundaryStress && n > 0 {
		if until := 64 - j.total%64; until < n {
			n = until
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(p, j.buf[:n])
	j.buf = j.buf[n:]
	j.total += n
	return n, nil
}
