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

// Package detection finds PN532 readers attached over UART, I2C or SPI.
//
// Each bus has its own Detector in a subpackage that registers itself on
// import; DetectAll runs every registered detector in parallel. Detectors
// first filter candidates by what the host reports about them (USB IDs,
// product strings) and, depending on Mode, confirm a reader by asking it
// for its firmware version.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/internal/syncutil"
)

// Mode controls how much a detector is allowed to talk to candidates.
type Mode int

const (
	// Passive only inspects what the host reports; nothing is opened
	Passive Mode = iota
	// Safe opens each candidate and asks for the firmware version
	Safe
	// Full also applies the SAM configuration, which proves the chip accepts
	// commands beyond the identity query
	Full
)

// String returns the mode name used in config files.
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "passive":
		return Passive, nil
	case "safe", "":
		return Safe, nil
	case "full":
		return Full, nil
	default:
		return Safe, fmt.Errorf("unknown detection mode %q", s)
	}
}

// Confidence ranks how sure a detector is that a candidate is a PN532.
type Confidence int

const (
	// Low means the bus exists but nothing about it points at a PN532
	Low Confidence = iota
	// Medium means the host descriptors match a known reader board
	Medium
	// High means the chip answered a firmware query
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one candidate reader.
type DeviceInfo struct {
	// Metadata holds bus specific details: "vid", "pid", "serial",
	// "product", "firmware"
	Metadata map[string]string
	// Firmware is set when the candidate was probed successfully
	Firmware *pn532.FirmwareVersion
	// Transport names the bus
	Transport pn532.TransportType
	// Path is what the matching transport constructor accepts
	Path string
	// Name is a human-readable label
	Name       string
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures detection.
type Options struct {
	// Blocklist holds "VID:PID" pairs that are never opened
	Blocklist []string
	// IgnorePaths holds device paths that are skipped entirely
	IgnorePaths []string
	// Transports restricts detection to these buses; empty means all
	Transports []pn532.TransportType
	// CacheTTL is how long results are reused when EnableCache is set
	CacheTTL time.Duration
	// Timeout bounds the whole DetectAll call
	Timeout time.Duration
	// ProbeTimeout bounds a single firmware query
	ProbeTimeout time.Duration
	// DeviceOptions are applied to the device used for probing
	DeviceOptions []pn532.Option
	Mode          Mode
	EnableCache   bool
}

// DefaultOptions returns options for a safe, cached scan.
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Timeout:      5 * time.Second,
		ProbeTimeout: 2 * time.Second,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Detector finds candidates on one kind of bus.
type Detector interface {
	// Detect returns the candidates it found, or ErrNoDevicesFound
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the bus this detector scans
	Transport() pn532.TransportType
}

var (
	// ErrNoDevicesFound indicates no PN532 devices were detected
	ErrNoDevicesFound = errors.New("no PN532 devices found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrNoDetectors is returned when no registered detector matches the
	// requested transports
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

// Registry holds a set of detectors and their cached results.
type Registry struct {
	cache     *resultCache
	detectors []Detector
	mu        syncutil.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cache: newResultCache(time.Now)}
}

// Register adds d. A detector for a transport that is already registered
// replaces the old one.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.detectors {
		if existing.Transport() == d.Transport() {
			r.detectors[i] = d
			return
		}
	}
	r.detectors = append(r.detectors, d)
}

func (r *Registry) selected(transports []pn532.TransportType) []Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(transports) == 0 {
		return append([]Detector(nil), r.detectors...)
	}
	var out []Detector
	for _, d := range r.detectors {
		for _, t := range transports {
			if d.Transport() == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// ClearCache drops cached results for the given transports, or for all of
// them when none are given.
func (r *Registry) ClearCache(transports ...pn532.TransportType) {
	if len(transports) == 0 {
		r.cache.clear()
		return
	}
	for _, t := range transports {
		r.cache.drop(t)
	}
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs the selected detectors in parallel and merges their
// results. Devices found by some detectors are returned even if others
// failed; if none were found the first detector error is returned, or
// ErrNoDevicesFound.
func (r *Registry) DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := r.selected(opts.Transports)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func() {
			results <- r.runDetector(ctx, d, opts)
		}()
	}

	var devices []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			devices = append(devices, res.devices...)
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(devices) > 0 {
		return devices, nil
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return nil, ErrNoDevicesFound
}

func (r *Registry) runDetector(ctx context.Context, d Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, ok := r.cache.get(d.Transport(), opts.CacheTTL); ok {
			// the cache may predate the current filters
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", d.Transport(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			r.cache.set(d.Transport(), devices)
		} else {
			// a reader that was unplugged must not linger until the TTL
			r.cache.drop(d.Transport())
		}
	}
	return detectionResult{devices: devices}
}

func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	var out []DeviceInfo
	for _, d := range devices {
		if IsPathIgnored(d.Path, opts.IgnorePaths) {
			continue
		}
		if IsBlocked(d.Metadata["vid"], d.Metadata["pid"], opts.Blocklist) {
			continue
		}
		out = append(out, d)
	}
	return out
}

var defaultRegistry = NewRegistry()

// RegisterDetector adds d to the package registry. Bus subpackages call it
// from init.
func RegisterDetector(d Detector) {
	defaultRegistry.Register(d)
}

// DetectAll scans with every detector registered in the package registry.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return defaultRegistry.DetectAll(ctx, opts)
}

// ClearDetectionCache removes cached results from the package registry.
func ClearDetectionCache(transports ...pn532.TransportType) {
	defaultRegistry.ClearCache(transports...)
}
