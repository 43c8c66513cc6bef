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

package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	_ "github.com/ZaparooProject/go-pn532-core/detection/i2c"
	_ "github.com/ZaparooProject/go-pn532-core/detection/spi"
	_ "github.com/ZaparooProject/go-pn532-core/detection/uart"
	"github.com/ZaparooProject/go-pn532-core/transport/i2c"
	"github.com/ZaparooProject/go-pn532-core/transport/spi"
	"github.com/ZaparooProject/go-pn532-core/transport/uart"
)

// guessTransport picks a bus from the shape of a device path.
func guessTransport(path string) pn532.TransportType {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "i2c"):
		return pn532.TransportI2C
	case strings.Contains(lower, "spi"):
		return pn532.TransportSPI
	default:
		return pn532.TransportUART
	}
}

func openTransport(typ pn532.TransportType, path string, cfg *Config) (pn532.Transport, error) {
	switch typ {
	case pn532.TransportUART:
		t, err := uart.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return t, nil
	case pn532.TransportI2C:
		t, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return t, nil
	case pn532.TransportSPI:
		var opts []spi.Option
		if cfg.Device.SPI.ChipSelect != "" {
			opts = append(opts, spi.WithChipSelect(cfg.Device.SPI.ChipSelect))
		}
		if cfg.Device.SPI.Reset != "" {
			opts = append(opts, spi.WithResetPin(cfg.Device.SPI.Reset))
		}
		t, err := spi.New(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", typ)
	}
}

// detect returns detected readers, most confident first.
func detect(ctx context.Context, cfg *Config) ([]detection.DeviceInfo, error) {
	opts := cfg.detectionOptions()
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(devices, func(a, b detection.DeviceInfo) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return devices, nil
}

// connect opens the configured reader, or the best detected one, and
// initializes it.
func connect(ctx context.Context, cfg *Config, log *slog.Logger) (*pn532.Device, error) {
	typ := pn532.TransportType(strings.ToLower(cfg.Device.Transport))
	path := cfg.Device.Path

	if path == "" {
		log.Debug("auto-detecting PN532 readers")
		devices, err := detect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("auto-detect: %w", err)
		}
		best := devices[0]
		log.Info("using detected reader", "transport", best.Transport, "path", best.Path,
			"confidence", best.Confidence.String())
		typ, path = best.Transport, best.Path
	} else if typ == "" {
		typ = guessTransport(path)
	}

	t, err := openTransport(typ, path, cfg)
	if err != nil {
		return nil, err
	}
	dev, err := pn532.New(t, pn532.WithTimeout(cfg.Device.Timeout))
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	if err := dev.Init(ctx); err != nil {
		_ = dev.Close()
		if errors.Is(err, pn532.ErrDeviceNotDetected) {
			return nil, fmt.Errorf("no PN532 answered on %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to initialize reader on %s: %w", path, err)
	}
	return dev, nil
}
