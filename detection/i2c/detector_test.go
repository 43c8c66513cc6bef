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

package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	virt "github.com/ZaparooProject/go-pn532-core/internal/testing"
)

func newDetector(readers map[string]bool, opened *[]string) *Detector {
	return &Detector{
		hostInit: func() error { return nil },
		buses: func() []*i2creg.Ref {
			return []*i2creg.Ref{
				{Name: "I2C1", Number: 1},
				{Name: "I2C3", Number: 3},
				{Name: "FT232H", Number: -1},
			}
		},
		open: func(bus string) (pn532.Transport, error) {
			*opened = append(*opened, bus)
			sim := virt.NewVirtualPN532()
			if !readers[bus] {
				sim.InjectFault(virt.FaultDropACK)
			}
			return sim, nil
		},
	}
}

func options(mode detection.Mode) *detection.Options {
	opts := detection.DefaultOptions()
	opts.Mode = mode
	opts.DeviceOptions = []pn532.Option{pn532.WithClock(virt.NewFakeClock())}
	return &opts
}

func TestDetect_ProbesEveryBus(t *testing.T) {
	t.Parallel()

	var opened []string
	d := newDetector(map[string]bool{"I2C1": true, "FT232H": true}, &opened)

	devices, err := d.Detect(context.Background(), options(detection.Safe))
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "I2C1", devices[0].Path)
	assert.Equal(t, pn532.TransportI2C, devices[0].Transport)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "1", devices[0].Metadata["bus"])
	assert.Equal(t, "0x24", devices[0].Metadata["address"])

	assert.Equal(t, "FT232H", devices[1].Path)
	assert.NotContains(t, devices[1].Metadata, "bus")

	assert.Equal(t, []string{"I2C1", "I2C3", "FT232H"}, opened)
}

func TestDetect_PassiveFindsNothing(t *testing.T) {
	t.Parallel()

	var opened []string
	d := newDetector(map[string]bool{"I2C1": true}, &opened)

	_, err := d.Detect(context.Background(), options(detection.Passive))
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Empty(t, opened)
}

func TestDetect_IgnoredBus(t *testing.T) {
	t.Parallel()

	var opened []string
	d := newDetector(map[string]bool{"I2C1": true}, &opened)
	opts := options(detection.Safe)
	opts.IgnorePaths = []string{"I2C1"}

	_, err := d.Detect(context.Background(), opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.NotContains(t, opened, "I2C1")
}

func TestDetect_HostInitFailure(t *testing.T) {
	t.Parallel()

	errHost := errors.New("no /dev/mem")
	d := &Detector{hostInit: func() error { return errHost }}

	_, err := d.Detect(context.Background(), options(detection.Safe))
	require.ErrorIs(t, err, errHost)
}
