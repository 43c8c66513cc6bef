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
	"context"
	"errors"
	"fmt"
	"time"
)

// Default timings
const (
	DefaultTimeout       = 1 * time.Second
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultTargetTimeout = 60 * time.Second
	firmwareTimeout      = 500 * time.Millisecond
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Timeout bounds each ready-wait of a command that has no explicit
	// timeout argument.
	Timeout time.Duration
	// PollInterval is the delay between two status checks while waiting
	// for the device to become ready.
	PollInterval time.Duration
	// TargetTimeout is the default wait for an initiator in InitAsTarget.
	TargetTimeout time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Timeout:       DefaultTimeout,
		PollInterval:  DefaultPollInterval,
		TargetTimeout: DefaultTargetTimeout,
	}
}

// Device represents a PN532 NFC controller reached through a Transport.
//
// Thread Safety: Device is NOT thread-safe. Every command is a multi-step
// exchange (write, ACK, response) on a half-duplex bus, and WritePin does a
// read-modify-write of a whole GPIO port. All methods must be called from a
// single goroutine or serialized externally, for example with Guard.
type Device struct {
	transport Transport
	clock     Clock
	config    *DeviceConfig
	firmware  *FirmwareVersion
}

// New creates a new PN532 device with the given transport. No I/O happens
// until the first command; call Init to verify the chip and configure the SAM.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	device := &Device{
		transport: transport,
		clock:     SystemClock{},
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Init checks that a PN532 answers and puts it in normal SAM mode, which is
// required before any card command.
func (d *Device) Init(ctx context.Context) error {
	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("firmware version check failed: %w", err)
	}
	Debugf("PN532 firmware %s", fw)

	ok, err := d.SAMConfig(ctx)
	if err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("SAM configuration failed: %w", ErrDeviceNotDetected)
	}
	return nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns a copy of the active configuration
func (d *Device) Config() DeviceConfig {
	return *d.config
}

// Firmware returns the version read by the last successful FirmwareVersion
// or Init call, or nil if the chip has not been queried yet.
func (d *Device) Firmware() *FirmwareVersion {
	return d.firmware
}

// SetTimeout sets the default ready-wait timeout
func (d *Device) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidParameter, timeout)
	}
	d.config.Timeout = timeout
	return nil
}

// Wakeup sends the transport's wake-up signal and re-applies the SAM
// configuration, which the chip forgets in power-down.
func (d *Device) Wakeup(ctx context.Context) error {
	if err := d.transport.Wakeup(); err != nil {
		return NewTransportError("wakeup", "", err, ErrorTypeTransient)
	}
	ok, err := d.SAMConfig(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeviceNotDetected
	}
	return nil
}

// Close closes the transport. Closing twice is not an error.
func (d *Device) Close() error {
	if d.transport == nil {
		return nil
	}
	err := d.transport.Close()
	d.transport = nil
	if err != nil && !errors.Is(err, ErrTransportClosed) {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}
