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

package uart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	virt "github.com/ZaparooProject/go-pn532-core/internal/testing"
)

var errBusy = errors.New("port busy")

// hostPorts is what the enumerator reports on a typical desktop:
// a CH340 reader, an unknown USB adapter, a built-in port and an Arduino.
func hostPorts() []*enumerator.PortDetails {
	return []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", SerialNumber: "A1"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "cafe", PID: "0001", Product: "Gadget"},
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"},
	}
}

type fakeHost struct {
	ports   []*enumerator.PortDetails
	readers map[string]bool
	failed  map[string]bool
	opened  []string
	mu      sync.Mutex
}

func (h *fakeHost) detector() *Detector {
	return &Detector{
		listPorts: func() ([]*enumerator.PortDetails, error) { return h.ports, nil },
		open:      h.open,
	}
}

func (h *fakeHost) open(path string) (pn532.Transport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, path)
	if h.failed[path] {
		return nil, errBusy
	}
	sim := virt.NewVirtualPN532()
	if !h.readers[path] {
		sim.InjectFault(virt.FaultDropACK)
	}
	return sim, nil
}

func testOptions(mode detection.Mode) *detection.Options {
	opts := detection.DefaultOptions()
	opts.Mode = mode
	opts.EnableCache = false
	opts.DeviceOptions = []pn532.Option{pn532.WithClock(virt.NewFakeClock())}
	return &opts
}

func byPath(devices []detection.DeviceInfo) map[string]detection.DeviceInfo {
	out := make(map[string]detection.DeviceInfo, len(devices))
	for _, d := range devices {
		out[d.Path] = d
	}
	return out
}

func TestDetect_Passive(t *testing.T) {
	t.Parallel()

	host := &fakeHost{ports: hostPorts()}
	devices, err := host.detector().Detect(context.Background(), testOptions(detection.Passive))
	require.NoError(t, err)

	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
	assert.Equal(t, "QinHeng CH340", devices[0].Name)
	assert.Equal(t, "A1", devices[0].Metadata["serial"])
	assert.Empty(t, host.opened)
}

func TestDetect_Safe(t *testing.T) {
	t.Parallel()

	host := &fakeHost{
		ports:   hostPorts(),
		readers: map[string]bool{"/dev/ttyACM0": true},
	}
	devices, err := host.detector().Detect(context.Background(), testOptions(detection.Safe))
	require.NoError(t, err)

	found := byPath(devices)
	require.Len(t, found, 2)

	// the CH340 board stays listed although it did not answer
	assert.Equal(t, detection.Medium, found["/dev/ttyUSB0"].Confidence)
	assert.Nil(t, found["/dev/ttyUSB0"].Firmware)

	confirmed := found["/dev/ttyACM0"]
	assert.Equal(t, detection.High, confirmed.Confidence)
	require.NotNil(t, confirmed.Firmware)
	assert.Equal(t, byte(0x32), confirmed.Firmware.IC)
	assert.Equal(t, "Gadget", confirmed.Name)

	// built-in ports are left alone and the Arduino is blocklisted
	assert.ElementsMatch(t, []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, host.opened)
}

func TestDetect_FullProbesBuiltinPorts(t *testing.T) {
	t.Parallel()

	host := &fakeHost{
		ports:   hostPorts(),
		readers: map[string]bool{"/dev/ttyS0": true},
	}
	devices, err := host.detector().Detect(context.Background(), testOptions(detection.Full))
	require.NoError(t, err)

	found := byPath(devices)
	assert.Equal(t, detection.High, found["/dev/ttyS0"].Confidence)
	assert.Contains(t, host.opened, "/dev/ttyS0")
	assert.NotContains(t, host.opened, "/dev/ttyACM1")
}

func TestDetect_OpenFailureKeepsLikelyPort(t *testing.T) {
	t.Parallel()

	host := &fakeHost{
		ports:  hostPorts()[:1],
		failed: map[string]bool{"/dev/ttyUSB0": true},
	}
	devices, err := host.detector().Detect(context.Background(), testOptions(detection.Safe))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
}

func TestDetect_IgnorePaths(t *testing.T) {
	t.Parallel()

	host := &fakeHost{ports: hostPorts()}
	opts := testOptions(detection.Safe)
	opts.IgnorePaths = []string{"/dev/ttyUSB0", "/dev/ttyACM0"}

	_, err := host.detector().Detect(context.Background(), opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Empty(t, host.opened)
}

func TestDetect_EnumerationError(t *testing.T) {
	t.Parallel()

	errEnum := errors.New("udev unavailable")
	d := &Detector{listPorts: func() ([]*enumerator.PortDetails, error) { return nil, errEnum }}

	_, err := d.Detect(context.Background(), testOptions(detection.Safe))
	require.ErrorIs(t, err, errEnum)
}

func TestDetect_NoPorts(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	_, err := host.detector().Detect(context.Background(), testOptions(detection.Safe))
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDescribe_ProductNamesReader(t *testing.T) {
	t.Parallel()

	info := describe(&enumerator.PortDetails{
		Name: "COM5", IsUSB: true, VID: "cafe", PID: "0002", Product: "PN532 NFC HAT",
	})
	assert.Equal(t, detection.Medium, info.Confidence)
	assert.Equal(t, "PN532 NFC HAT", info.Name)
	assert.Equal(t, pn532.TransportUART, info.Transport)
}
