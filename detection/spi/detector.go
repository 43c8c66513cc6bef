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

// Package spi detects PN532 readers on the host's SPI ports. Importing it
// registers the detector with the detection package.
package spi

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	"github.com/ZaparooProject/go-pn532-core/transport/spi"
)

func init() {
	detection.RegisterDetector(New())
}

// Detector scans periph's SPI port registry.
type Detector struct {
	hostInit func() error
	ports    func() []*spireg.Ref
	open     func(port string) (pn532.Transport, error)
}

// New returns a detector over the ports periph finds on this host.
func New() *Detector {
	return &Detector{
		hostInit: func() error {
			_, err := host.Init()
			return err
		},
		ports: spireg.All,
		open: func(port string) (pn532.Transport, error) {
			return spi.New(port)
		},
	}
}

// Transport returns pn532.TransportSPI.
func (*Detector) Transport() pn532.TransportType {
	return pn532.TransportSPI
}

// Detect probes every registered SPI port, in Full mode only. Clocking
// frames into an unknown SPI peripheral is not harmless, so Safe mode
// leaves SPI alone.
func (d *Detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if opts.Mode != detection.Full {
		return nil, detection.ErrNoDevicesFound
	}
	if err := d.hostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, ref := range d.ports() {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(ref.Name, opts.IgnorePaths) {
			continue
		}

		info := detection.DeviceInfo{
			Transport: pn532.TransportSPI,
			Path:      ref.Name,
			Name:      "PN532 on " + ref.Name,
			Metadata:  make(map[string]string),
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
