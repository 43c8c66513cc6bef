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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pn532-core/internal/syncutil"
)

// Session log state
var (
	sessionMu     syncutil.Mutex
	sessionFile   *os.File
	sessionPath   string
	sessionWriter io.Writer
)

// InitSessionLog creates a new session log file in dir (the current
// directory when empty). Every Debugf line, wire TX/RX included, is
// appended to it regardless of the console debug setting. Returns the path.
func InitSessionLog(dir string) (string, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionFile != nil {
		return sessionPath, nil
	}

	name := fmt.Sprintf("pn532_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // path is built from dir and a timestamp
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	sessionFile = f
	sessionPath = path
	sessionWriter = f
	writeSessionHeader(f)

	return path, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionFile == nil {
		return nil
	}

	_, _ = fmt.Fprintf(sessionWriter, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	err := sessionFile.Close()
	sessionFile = nil
	sessionPath = ""
	sessionWriter = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// SessionLogPath returns the current session log file path, or "".
func SessionLogPath() string {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionPath
}

func writeSessionLine(level, message string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionWriter == nil {
		return
	}
	_, _ = fmt.Fprintf(sessionWriter, "%s %s: %s\n", time.Now().Format("15:04:05.000"), level, message)
}

func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== PN532 Debug Session Log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "================================\n\n")
}
