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

// Package uart drives a PN532 over its high-speed UART (HSU) interface
// through go.bug.st/serial.
//
// UART has no status line, so Ready reads ahead into a buffer and reports
// whether anything arrived. Read hands out buffered bytes and stops at the
// end of the first complete frame.
package uart

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	pn532 "github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/internal/devlock"
	"github.com/ZaparooProject/go-pn532-core/internal/frame"
)

const baudRate = 115200

// wakeupSequence is sent before the first command and whenever a write
// fails: a long 0x55 idle break followed by zero padding (User Manual
// §7.2.11).
var wakeupSequence = []byte{
	0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var startCode = []byte{frame.StartCode1, frame.StartCode2}

// Transport is a raw PN532 UART adapter
type Transport struct {
	port     serial.Port
	lock     *devlock.Lock
	buf      []byte
	portName string
	chunk    []byte
}

// readTimeout is the per-read serial timeout. USB-serial drivers on
// Windows need longer to deliver a frame.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New locks and opens a serial port at 115200 8N1 and wakes the PN532.
func New(portName string) (*Transport, error) {
	lock, err := devlock.Acquire(portName)
	if err != nil {
		return nil, pn532.NewTransportError("lock", portName, err, pn532.ErrorTypePermanent)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		_ = lock.Release()
		return nil, pn532.NewTransportError("open", portName, err, pn532.ErrorTypePermanent)
	}

	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t := newTransport(port, portName)
	t.lock = lock
	if err := t.Wakeup(); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(port serial.Port, name string) *Transport {
	return &Transport{
		port:     port,
		portName: name,
		chunk:    make([]byte, 256),
	}
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output buffer to empty, retrying when a
// signal interrupts the syscall.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	var err error
	for attempt := range maxRetries {
		err = t.port.Drain()
		if err == nil || !isInterruptedSystemCall(err) {
			break
		}
		time.Sleep(baseDelay << attempt) // 2ms, 4ms, 8ms
	}
	if err != nil {
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}
	return nil
}

func (t *Transport) write(data []byte, operation string) error {
	if t.port == nil {
		return pn532.ErrTransportClosed
	}
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART %s write failed: %w", operation, err)
	}
	if n != len(data) {
		return pn532.NewTransportError(operation, t.portName,
			fmt.Errorf("%w: wrote %d of %d bytes", pn532.ErrTransportWrite, n, len(data)),
			pn532.ErrorTypeTransient)
	}
	return t.drainWithRetry(operation)
}

// Write sends a frame. Anything still buffered from an earlier exchange is
// discarded first so it cannot be mistaken for this command's ACK.
func (t *Transport) Write(data []byte) error {
	if t.port == nil {
		return pn532.ErrTransportClosed
	}
	t.buf = t.buf[:0]
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART input reset failed: %w", err)
	}
	return t.write(data, "frame")
}

// fill performs one serial read into the buffer and returns how many bytes
// arrived; zero means the read timed out.
func (t *Transport) fill() (int, error) {
	n, err := t.port.Read(t.chunk)
	if err != nil {
		return 0, fmt.Errorf("UART read failed: %w", err)
	}
	t.buf = append(t.buf, t.chunk[:n]...)
	return n, nil
}

// frameLength returns the length of the first complete frame in buf,
// leading bytes included, or -1 when none is complete yet.
func frameLength(buf []byte) int {
	i := bytes.Index(buf, startCode)
	if i < 0 || len(buf) < i+4 {
		return -1
	}
	length, lcs := buf[i+2], buf[i+3]
	total := i + 6 + int(length)
	if (length == 0x00 && lcs == 0xFF) || (length == 0xFF && lcs == 0x00) {
		total = i + 5 // ACK or NACK
	}
	if len(buf) < total {
		return -1
	}
	return total
}

// Ready reports whether the PN532 has sent anything, reading ahead if the
// buffer is empty.
func (t *Transport) Ready() (bool, error) {
	if t.port == nil {
		return false, pn532.ErrTransportClosed
	}
	if len(t.buf) > 0 {
		return true, nil
	}
	n, err := t.fill()
	return n > 0, err
}

// Read returns up to n buffered bytes, reading more until n are available,
// the first frame is complete, or a read times out.
func (t *Transport) Read(n int) ([]byte, error) {
	if t.port == nil {
		return nil, pn532.ErrTransportClosed
	}
	for len(t.buf) < n && frameLength(t.buf) < 0 {
		got, err := t.fill()
		if err != nil {
			return nil, err
		}
		if got == 0 {
			break
		}
	}

	k := min(n, len(t.buf))
	if end := frameLength(t.buf); end >= 0 && end < k {
		k = end
	}
	out := bytes.Clone(t.buf[:k])
	t.buf = t.buf[k:]
	return out, nil
}

// Transfer writes txData and reads back as many bytes. UART is not full
// duplex, so the exchange is sequential.
func (t *Transport) Transfer(txData []byte) ([]byte, error) {
	if err := t.Write(txData); err != nil {
		return nil, err
	}
	return t.Read(len(txData))
}

// Wakeup sends the HSU wake-up sequence.
func (t *Transport) Wakeup() error {
	return t.write(wakeupSequence, "wakeup")
}

// Close closes the port and releases the device lock. Closing twice is not
// an error.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if lerr := t.lock.Release(); err == nil && lerr != nil {
		err = lerr
	}
	t.lock = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

var (
	_ pn532.Transport      = (*Transport)(nil)
	_ pn532.TypedTransport = (*Transport)(nil)
)
