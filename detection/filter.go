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
	"path/filepath"
	"strings"
)

// DefaultBlocklist lists USB devices that misbehave when probed.
// Entries are "VID:PID" in hexadecimal.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno resets when the port is opened
		"1366:0105", // SEGGER J-Link CDC
	}
}

// knownBridges are the USB-serial chips PN532 breakout boards ship with.
var knownBridges = map[string]string{
	"067B:2303": "Prolific PL2303",
	"0403:6001": "FTDI FT232",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
	"1A86:55D4": "QinHeng CH9102",
}

var readerKeywords = []string{"pn532", "nfc", "rfid", "13.56"}

func vidpid(vid, pid string) string {
	return strings.ToUpper(strings.TrimSpace(vid) + ":" + strings.TrimSpace(pid))
}

// IsBlocked reports whether vid:pid appears in blocklist. Devices without
// USB IDs are never blocked.
func IsBlocked(vid, pid string, blocklist []string) bool {
	if vid == "" || pid == "" {
		return false
	}
	id := vidpid(vid, pid)
	for _, blocked := range blocklist {
		if strings.ToUpper(strings.TrimSpace(blocked)) == id {
			return true
		}
	}
	return false
}

// KnownBridge returns the chip name when vid:pid is a USB-serial bridge
// commonly used on PN532 boards.
func KnownBridge(vid, pid string) (string, bool) {
	name, ok := knownBridges[vidpid(vid, pid)]
	return name, ok
}

// MentionsReader reports whether a host-provided description names an NFC
// reader.
func MentionsReader(descriptions ...string) bool {
	for _, s := range descriptions {
		lower := strings.ToLower(s)
		for _, kw := range readerKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// IsPathIgnored reports whether devicePath matches an entry in ignorePaths.
// Paths are compared after cleaning and case folding, since Windows COM
// names are case-insensitive.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p == "" {
			continue
		}
		if p == devicePath || normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
