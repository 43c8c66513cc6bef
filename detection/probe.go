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

package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pn532-core"
)

// ErrProbeSkipped is returned by Probe in Passive mode.
var ErrProbeSkipped = errors.New("probe skipped in passive mode")

// Probe asks the chip behind t for its firmware version and, in Full mode,
// applies the SAM configuration. It takes ownership of t and always closes
// it.
//
// Probing is a single attempt. A candidate that does not answer is not a
// reader as far as detection is concerned; retrying would only stall the
// scan on whatever else is plugged in.
func Probe(
	ctx context.Context, t pn532.Transport, mode Mode, timeout time.Duration, devOpts ...pn532.Option,
) (*pn532.FirmwareVersion, error) {
	defer func() { _ = t.Close() }()

	if mode == Passive {
		return nil, ErrProbeSkipped
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dev, err := pn532.New(t, devOpts...)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	fw, err := dev.FirmwareVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	if mode == Full {
		ok, err := dev.SAMConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("probe: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("probe: %w", pn532.ErrDeviceNotDetected)
		}
	}
	return fw, nil
}

// confirm records a successful probe on info.
func confirm(info *DeviceInfo, fw *pn532.FirmwareVersion) {
	info.Confidence = High
	info.Firmware = fw
	if info.Metadata == nil {
		info.Metadata = make(map[string]string)
	}
	info.Metadata["firmware"] = fw.String()
}

// Confirm runs Probe and, on success, marks info as a confirmed reader.
// Detectors call it with a freshly opened transport.
func Confirm(ctx context.Context, info *DeviceInfo, t pn532.Transport, opts *Options) bool {
	fw, err := Probe(ctx, t, opts.Mode, opts.ProbeTimeout, opts.DeviceOptions...)
	if err != nil {
		pn532.Debugf("probe %s %s: %v", info.Transport, info.Path, err)
		return false
	}
	confirm(info, fw)
	return true
}
