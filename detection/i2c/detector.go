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

// Package i2c detects PN532 readers on the host's I2C buses. Importing it
// registers the detector with the detection package.
package i2c

import (
	"context"
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	"github.com/ZaparooProject/go-pn532-core/transport/i2c"
)

// Address is the PN532's fixed 7-bit I2C address.
const Address = 0x24

func init() {
	detection.RegisterDetector(New())
}

// Detector scans periph's I2C bus registry.
type Detector struct {
	hostInit func() error
	buses    func() []*i2creg.Ref
	open     func(bus string) (pn532.Transport, error)
}

// New returns a detector over the buses periph finds on this host.
func New() *Detector {
	return &Detector{
		hostInit: func() error {
			_, err := host.Init()
			return err
		},
		buses: i2creg.All,
		open: func(bus string) (pn532.Transport, error) {
			return i2c.New(bus)
		},
	}
}

// Transport returns pn532.TransportI2C.
func (*Detector) Transport() pn532.TransportType {
	return pn532.TransportI2C
}

// Detect addresses the PN532 on every registered bus. I2C buses say
// nothing about what is attached, so Passive mode finds nothing and every
// reported device has been confirmed by a probe.
func (d *Detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if opts.Mode == detection.Passive {
		return nil, detection.ErrNoDevicesFound
	}
	if err := d.hostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, ref := range d.buses() {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(ref.Name, opts.IgnorePaths) {
			continue
		}

		info := detection.DeviceInfo{
			Transport: pn532.TransportI2C,
			Path:      ref.Name,
			Name:      "PN532 on " + ref.Name,
			Metadata: map[string]string{
				"address": fmt.Sprintf("0x%02X", Address),
			},
		}
		if ref.Number >= 0 {
			info.Metadata["bus"] = strconv.Itoa(ref.Number)
		}

		t, err := d.open(ref.Name)
		if err != nil {
			pn532.Debugf("open %s: %v", ref.Name, err)
			continue
		}
		if detection.Confirm(ctx, &info, t, opts) {
			devices = append(devices, info)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
