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

// Package uart detects PN532 readers on serial ports. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"path/filepath"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	"github.com/ZaparooProject/go-pn532-core/transport/uart"
)

func init() {
	detection.RegisterDetector(New())
}

// Detector scans serial ports.
type Detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	open      func(path string) (pn532.Transport, error)
}

// New returns a detector backed by the host's serial port list.
func New() *Detector {
	return &Detector{
		listPorts: enumerator.GetDetailedPortsList,
		open: func(path string) (pn532.Transport, error) {
			return uart.New(path)
		},
	}
}

// Transport returns pn532.TransportUART.
func (*Detector) Transport() pn532.TransportType {
	return pn532.TransportUART
}

// Detect lists serial ports, drops blocked and ignored ones and, outside
// Passive mode, probes the rest.
//
// Which ports are probed depends on the mode: Safe probes USB ports only,
// Full also probes built-in ports. Ports whose USB descriptors match a
// known reader board are reported with Medium confidence even when the
// probe fails, since the port may simply be busy.
func (d *Detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(port.Name, opts.IgnorePaths) ||
			detection.IsBlocked(port.VID, port.PID, opts.Blocklist) {
			continue
		}
		if info, ok := d.inspect(ctx, port, opts); ok {
			devices = append(devices, info)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *Detector) inspect(
	ctx context.Context, port *enumerator.PortDetails, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	info := describe(port)
	likely := info.Confidence == detection.Medium

	var probe bool
	switch opts.Mode {
	case detection.Passive:
		return info, likely
	case detection.Safe:
		probe = port.IsUSB
	case detection.Full:
		probe = true
	}

	if probe {
		t, err := d.open(port.Name)
		if err != nil {
			pn532.Debugf("open %s: %v", port.Name, err)
		} else if detection.Confirm(ctx, &info, t, opts) {
			return info, true
		}
	}
	return info, likely
}

func describe(port *enumerator.PortDetails) detection.DeviceInfo {
	info := detection.DeviceInfo{
		Transport:  pn532.TransportUART,
		Path:       port.Name,
		Name:       filepath.Base(port.Name),
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if !port.IsUSB {
		return info
	}

	info.Metadata["vid"] = port.VID
	info.Metadata["pid"] = port.PID
	if port.SerialNumber != "" {
		info.Metadata["serial"] = port.SerialNumber
	}
	if port.Product != "" {
		info.Metadata["product"] = port.Product
		info.Name = port.Product
	}

	if bridge, ok := detection.KnownBridge(port.VID, port.PID); ok {
		info.Metadata["bridge"] = bridge
		if port.Product == "" {
			info.Name = bridge
		}
		info.Confidence = detection.Medium
	}
	if detection.MentionsReader(port.Product) {
		info.Confidence = detection.Medium
	}
	return info
}
