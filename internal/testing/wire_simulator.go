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

// Package testing provides a wire-level PN532 simulator for driver tests.
//
// VirtualPN532 parses host frames, answers with an ACK followed by a
// response frame, and keeps enough chip state (SAM, RF field, GPIO ports,
// selected target, power mode) for the command library to be exercised end
// to end. It satisfies the driver's Transport interface without importing
// the driver, and Stream exposes the same device as a byte stream for
// serial adapter tests.
//
// Protocol reference: PN532 User Manual §6.2 (frames) and §7 (commands).
package testing

import (
	"errors"
	"slices"

	"github.com/ZaparooProject/go-pn532-core/internal/frame"
	"github.com/ZaparooProject/go-pn532-core/internal/syncutil"
)

// PN532 command codes handled by the simulator (User Manual §7, Table 12)
const (
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdReadGPIO            = 0x0C
	cmdWriteGPIO           = 0x0E
	cmdSetParameters       = 0x12
	cmdSAMConfiguration    = 0x14
	cmdPowerDown           = 0x16
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
	cmdInAutoPoll          = 0x60
	cmdTgGetData           = 0x86
	cmdTgInitAsTarget      = 0x8C
	cmdTgSetData           = 0x8E
)

// Status bytes the simulated chip reports (User Manual §7.1, Table 13)
const (
	statusOK         = 0x00
	statusTimeout    = 0x01
	statusInvalid    = 0x10
	statusMifareAuth = 0x14
	statusReleased   = 0x29
	statusNoCard     = 0x2B
)

// GPIO bits that exist on each writable port
const (
	gpioP3Mask = 0x3F
	gpioP7Mask = 0x06
)

// syntaxErrorFrame is the fixed application-level error frame (§6.2.1.5).
var syntaxErrorFrame = []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, frame.ErrorFrameTFI, 0x81, 0x00}

// ErrClosed is returned by every Transport method after Close.
var ErrClosed = errors.New("virtual PN532 closed")

// ErrInjectedWrite is the error returned for FaultWriteError.
var ErrInjectedWrite = errors.New("injected write failure")

// Fault is a one-shot misbehaviour applied to the next command.
type Fault int

const (
	// FaultNone answers normally
	FaultNone Fault = iota
	// FaultWriteError fails the host's write
	FaultWriteError
	// FaultDropACK answers nothing, so the host never sees ready
	FaultDropACK
	// FaultBadACK answers with six bytes that are not an ACK
	FaultBadACK
	// FaultNACK answers with a NACK in place of the ACK
	FaultNACK
	// FaultDropResponse sends the ACK but no response
	FaultDropResponse
	// FaultBadEcho answers with the wrong response command code
	FaultBadEcho
	// FaultChecksum corrupts the response payload checksum
	FaultChecksum
	// FaultSyntaxError answers with the error frame
	FaultSyntaxError
)

// PowerMode is the simulated chip power state (§3.1.2)
type PowerMode int

const (
	PowerModeNormal PowerMode = iota
	PowerModePowerDown
)

// State is a snapshot of the simulated chip state.
type State struct {
	PowerMode      PowerMode
	SelectedTarget int // 0 = none
	MaxRetries     byte
	RFFieldOn      bool
	SAMConfigured  bool
}

// Command is one host command the simulator received.
type Command struct {
	Params []byte
	Code   byte
}

type initiator struct {
	command  []byte
	data     [][]byte
	received [][]byte
	mode     byte
}

// VirtualPN532 simulates a PN532 at the frame protocol level.
//
// Output is queued per frame: every Read returns (up to n bytes of) the next
// queued frame, the way an SPI or I2C read transaction starts at the
// beginning of whatever the chip has prepared.
type VirtualPN532 struct {
	overrides    map[byte][]byte
	initiator    *initiator
	lastResponse []byte
	tags         []*VirtualTag
	pending      [][]byte
	commands     []Command
	faults       []Fault
	ackOverride  []byte
	streamIn     []byte
	streamOut    []byte
	targetConfig []byte
	mu           syncutil.Mutex
	state        State
	readyDelay   int
	busy         int
	wakeups      int
	firmware     [4]byte
	gpio         [3]byte
	closed       bool
}

// NewVirtualPN532 creates a simulator reporting firmware PN532 v1.6 with
// no tags in the field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{
		firmware:  [4]byte{0x32, 0x01, 0x06, 0x07},
		gpio:      [3]byte{0x3F, 0x06, 0x03},
		overrides: make(map[byte][]byte),
	}
}

// Write receives one host frame (or an ACK/NACK) and queues the chip's
// answer.
func (v *VirtualPN532) Write(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if len(v.faults) > 0 && v.faults[0] == FaultWriteError {
		v.faults = v.faults[1:]
		return ErrInjectedWrite
	}
	v.receiveFrame(data)
	return nil
}

// Read returns up to n bytes of the next queued frame. With nothing queued
// the bus reads back zeros.
func (v *VirtualPN532) Read(n int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrClosed
	}
	if len(v.pending) == 0 {
		return make([]byte, n), nil
	}
	head := v.pending[0]
	v.pending = v.pending[1:]
	return slices.Clone(head[:min(n, len(head))]), nil
}

// Transfer clocks len(tx) bytes of the next queued frame out of the chip;
// the bytes shifted in are ignored.
func (v *VirtualPN532) Transfer(tx []byte) ([]byte, error) {
	rx, err := v.Read(len(tx))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(tx))
	copy(out, rx)
	return out, nil
}

// Ready reports whether the chip has output queued. SetReadyDelay makes it
// report busy for a number of polls after every command.
func (v *VirtualPN532) Ready() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, ErrClosed
	}
	if len(v.pending) == 0 {
		return false, nil
	}
	if v.busy > 0 {
		v.busy--
		return false, nil
	}
	return true, nil
}

// Wakeup brings the chip out of power-down.
func (v *VirtualPN532) Wakeup() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.wakeups++
	v.state.PowerMode = PowerModeNormal
	return nil
}

// Close marks the simulator closed.
func (v *VirtualPN532) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// InjectFault queues misbehaviours, one per following command.
func (v *VirtualPN532) InjectFault(faults ...Fault) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults = append(v.faults, faults...)
}

// OverrideResponse makes the next response to cmd carry data (the bytes
// after the response code) regardless of chip state.
func (v *VirtualPN532) OverrideResponse(cmd byte, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.overrides[cmd] = slices.Clone(data)
}

// ReplaceNextACK makes the next command answer with ack in place of the ACK
// frame and send no response.
func (v *VirtualPN532) ReplaceNextACK(ack []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ackOverride = slices.Clone(ack)
}

// SetReadyDelay makes Ready report busy for polls polls after each command.
func (v *VirtualPN532) SetReadyDelay(polls int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readyDelay = polls
}

// SetFirmwareVersion configures the GetFirmwareVersion answer.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = [4]byte{ic, ver, rev, support}
}

// SetGPIO sets the raw P3, P7 and I port levels.
func (v *VirtualPN532) SetGPIO(p3, p7, i byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gpio = [3]byte{p3, p7, i}
}

// GPIO returns the raw P3, P7 and I port levels.
func (v *VirtualPN532) GPIO() [3]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gpio
}

// SetInitiator simulates an initiator that activates the chip once it is
// configured as a target. atr is the command the initiator opens with; data
// is handed out by successive TgGetData calls.
func (v *VirtualPN532) SetInitiator(mode byte, atr []byte, data ...[]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initiator = &initiator{mode: mode, command: slices.Clone(atr), data: data}
}

// TargetReceived returns what TgSetData sent to the initiator.
func (v *VirtualPN532) TargetReceived() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.initiator == nil {
		return nil
	}
	return slices.Clone(v.initiator.received)
}

// TargetConfig returns the parameters of the last TgInitAsTarget.
func (v *VirtualPN532) TargetConfig() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.targetConfig)
}

// AddTag places a tag in the field.
func (v *VirtualPN532) AddTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tags = append(v.tags, tag)
}

// SetTag replaces every tag in the field with tag.
func (v *VirtualPN532) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tags = []*VirtualTag{tag}
	v.state.SelectedTarget = 0
}

// RemoveAllTags empties the field.
func (v *VirtualPN532) RemoveAllTags() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tags = nil
	v.state.SelectedTarget = 0
}

// State returns a snapshot of the chip state.
func (v *VirtualPN532) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Commands returns every command received so far.
func (v *VirtualPN532) Commands() []Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.commands)
}

// LastCommand returns the most recent command.
func (v *VirtualPN532) LastCommand() (Command, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.commands) == 0 {
		return Command{}, false
	}
	return v.commands[len(v.commands)-1], true
}

// WakeupCount returns how often Wakeup was called.
func (v *VirtualPN532) WakeupCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wakeups
}

// Closed reports whether Close was called.
func (v *VirtualPN532) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// receiveFrame handles one complete host frame. Caller holds mu.
func (v *VirtualPN532) receiveFrame(raw []byte) {
	switch {
	case frame.IsAck(raw):
		// abort: drop whatever was prepared (§6.2.2.1.d)
		v.pending = nil
		return
	case frame.IsNack(raw):
		if v.lastResponse != nil {
			v.pending = append(v.pending, slices.Clone(v.lastResponse))
		}
		return
	}

	payload, err := frame.Decode(raw)
	if err != nil {
		// the chip ignores frames it cannot parse
		return
	}
	if v.state.PowerMode == PowerModePowerDown {
		return
	}

	v.busy = v.readyDelay
	fault := FaultNone
	if len(v.faults) > 0 {
		fault = v.faults[0]
		v.faults = v.faults[1:]
	}

	if len(payload) < 2 || payload[0] != frame.HostToPN532 {
		v.queue(frame.AckFrame)
		v.queue(syntaxErrorFrame)
		return
	}
	cmd, params := payload[1], payload[2:]
	v.commands = append(v.commands, Command{Code: cmd, Params: slices.Clone(params)})

	if v.ackOverride != nil {
		v.queue(v.ackOverride)
		v.ackOverride = nil
		return
	}

	switch fault {
	case FaultDropACK:
		return
	case FaultBadACK:
		v.queue([]byte{0x00, 0x00, 0xFF, 0x12, 0x34, 0x00})
		return
	case FaultNACK:
		v.queue(frame.NackFrame)
		return
	}
	v.queue(frame.AckFrame)

	switch fault {
	case FaultDropResponse:
		return
	case FaultSyntaxError:
		v.respondRaw(syntaxErrorFrame)
		return
	}

	data, respond, valid := v.handle(cmd, params)
	if override, ok := v.overrides[cmd]; ok {
		delete(v.overrides, cmd)
		data, respond, valid = override, true, true
	}
	if !valid {
		v.respondRaw(syntaxErrorFrame)
		return
	}
	if !respond {
		return
	}

	code := cmd + 1
	if fault == FaultBadEcho {
		code = cmd + 3
	}
	out := append([]byte{frame.PN532ToHost, code}, data...)
	encoded, err := frame.Encode(out)
	if err != nil {
		v.respondRaw(syntaxErrorFrame)
		return
	}
	if fault == FaultChecksum {
		encoded[len(encoded)-2] ^= 0xFF
	}
	v.respondRaw(encoded)
}

func (v *VirtualPN532) queue(b []byte) {
	v.pending = append(v.pending, slices.Clone(b))
}

func (v *VirtualPN532) respondRaw(b []byte) {
	v.lastResponse = slices.Clone(b)
	v.queue(b)
}

// handle runs one command. respond is false when the chip stays silent;
// valid is false for a syntax error.
func (v *VirtualPN532) handle(cmd byte, params []byte) (data []byte, respond, valid bool) {
	switch cmd {
	case cmdGetFirmwareVersion:
		return v.firmware[:], true, true
	case cmdGetGeneralStatus:
		return v.generalStatus(), true, true
	case cmdReadGPIO:
		return v.gpio[:], true, true
	case cmdWriteGPIO:
		return v.writeGPIO(params)
	case cmdSetParameters:
		return nil, true, len(params) >= 1
	case cmdSAMConfiguration:
		return v.samConfiguration(params)
	case cmdPowerDown:
		return v.powerDown(params)
	case cmdRFConfiguration:
		return v.rfConfiguration(params)
	case cmdInListPassiveTarget:
		return v.listPassiveTarget(params)
	case cmdInDataExchange:
		if len(params) < 2 {
			return nil, false, false
		}
		return v.exchange(int(params[0]), params[1:]), true, true
	case cmdInCommunicateThru:
		if len(params) < 1 {
			return nil, false, false
		}
		return v.exchange(v.state.SelectedTarget, params), true, true
	case cmdInRelease:
		return v.release(params)
	case cmdInSelect:
		return v.selectTarget(params)
	case cmdInAutoPoll:
		return v.autoPoll(params)
	case cmdTgInitAsTarget:
		return v.initAsTarget(params)
	case cmdTgGetData:
		return v.targetGetData(), true, true
	case cmdTgSetData:
		return v.targetSetData(params), true, true
	default:
		return nil, false, false
	}
}

func (v *VirtualPN532) generalStatus() []byte {
	field := byte(0x00)
	if v.state.RFFieldOn {
		field = 0x01
	}
	out := []byte{statusOK, field, 0x00}
	if v.state.SelectedTarget > 0 {
		out[2] = 1
		out = append(out, byte(v.state.SelectedTarget), 0x00, 0x00, 0x00)
	}
	return append(out, 0x00)
}

func (v *VirtualPN532) writeGPIO(params []byte) ([]byte, bool, bool) {
	if len(params) < 2 {
		return nil, false, false
	}
	if params[0]&0x80 != 0 {
		v.gpio[0] = params[0] & gpioP3Mask
	}
	if params[1]&0x80 != 0 {
		v.gpio[1] = params[1] & gpioP7Mask
	}
	return nil, true, true
}

func (v *VirtualPN532) samConfiguration(params []byte) ([]byte, bool, bool) {
	if len(params) < 1 || params[0] < 0x01 || params[0] > 0x04 {
		return nil, false, false
	}
	v.state.SAMConfigured = true
	return nil, true, true
}

func (v *VirtualPN532) powerDown(params []byte) ([]byte, bool, bool) {
	if len(params) < 1 {
		return nil, false, false
	}
	v.state.PowerMode = PowerModePowerDown
	v.state.SelectedTarget = 0
	v.state.RFFieldOn = false
	return []byte{statusOK}, true, true
}

func (v *VirtualPN532) rfConfiguration(params []byte) ([]byte, bool, bool) {
	if len(params) < 1 {
		return nil, false, false
	}
	switch params[0] {
	case 0x01:
		if len(params) < 2 {
			return nil, false, false
		}
		v.state.RFFieldOn = params[1]&0x01 != 0
	case 0x05:
		if len(params) < 4 {
			return nil, false, false
		}
		v.state.MaxRetries = params[3]
	}
	return nil, true, true
}

// listPassiveTarget answers InListPassiveTarget for 106 kbps type A.
func (v *VirtualPN532) listPassiveTarget(params []byte) ([]byte, bool, bool) {
	if len(params) < 2 || params[0] == 0 || params[0] > 2 || params[1] > 0x04 {
		return nil, false, false
	}
	maxTg := int(params[0])
	v.state.RFFieldOn = true

	out := []byte{0x00}
	if params[1] != 0x00 {
		return out, true, true
	}
	for i, tag := range v.tags {
		if !tag.Present {
			continue
		}
		if int(out[0]) == maxTg {
			break
		}
		out[0]++
		atqa, sak := tag.selectResponse()
		out = append(out, out[0], atqa[0], atqa[1], sak, byte(len(tag.UID)))
		out = append(out, tag.UID...)
		if out[0] == 1 {
			v.state.SelectedTarget = i + 1
			tag.ResetAuthentication()
		}
	}
	return out, true, true
}

// autoPoll reports the first present tag when a 106 kbps type A type
// (generic, Mifare or ISO14443-4A) is among the requested ones.
func (v *VirtualPN532) autoPoll(params []byte) ([]byte, bool, bool) {
	if len(params) < 3 || params[0] == 0 || params[1] == 0 || params[1] > 0x0F {
		return nil, false, false
	}
	v.state.RFFieldOn = true

	var typ byte
	found := false
	for _, t := range params[2:] {
		if t == 0x00 || t == 0x10 || t == 0x20 {
			typ, found = t, true
			break
		}
	}
	if !found {
		return []byte{0x00}, true, true
	}
	for i, tag := range v.tags {
		if !tag.Present {
			continue
		}
		atqa, sak := tag.selectResponse()
		data := []byte{0x01, atqa[0], atqa[1], sak, byte(len(tag.UID))}
		data = append(data, tag.UID...)
		v.state.SelectedTarget = i + 1
		tag.ResetAuthentication()
		return append([]byte{0x01, typ, byte(len(data))}, data...), true, true
	}
	return []byte{0x00}, true, true
}

func (v *VirtualPN532) exchange(tg int, data []byte) []byte {
	if v.state.SelectedTarget == 0 || tg != v.state.SelectedTarget || tg > len(v.tags) {
		return []byte{statusReleased}
	}
	tag := v.tags[tg-1]
	if !tag.Present {
		return []byte{statusNoCard}
	}
	resp, status := tag.Exchange(data)
	if status != statusOK {
		return []byte{status}
	}
	return append([]byte{statusOK}, resp...)
}

func (v *VirtualPN532) release(params []byte) ([]byte, bool, bool) {
	if len(params) < 1 {
		return nil, false, false
	}
	tg := int(params[0])
	if tg == 0 || tg == v.state.SelectedTarget {
		for _, tag := range v.tags {
			tag.ResetAuthentication()
		}
		v.state.SelectedTarget = 0
	}
	return []byte{statusOK}, true, true
}

func (v *VirtualPN532) selectTarget(params []byte) ([]byte, bool, bool) {
	if len(params) < 1 {
		return nil, false, false
	}
	tg := int(params[0])
	if tg < 1 || tg > len(v.tags) {
		return []byte{statusReleased}, true, true
	}
	if !v.tags[tg-1].Present {
		return []byte{statusNoCard}, true, true
	}
	v.state.SelectedTarget = tg
	return []byte{statusOK}, true, true
}

// initAsTarget checks the fixed TgInitAsTarget layout and stays silent
// until an initiator is configured.
func (v *VirtualPN532) initAsTarget(params []byte) ([]byte, bool, bool) {
	// mode, mifare(6), felica(18), nfcid3(10), general len, historical len
	const fixed = 1 + 6 + 18 + 10
	if len(params) < fixed+2 {
		return nil, false, false
	}
	gLen := int(params[fixed])
	if len(params) < fixed+1+gLen+1 {
		return nil, false, false
	}
	hLen := int(params[fixed+1+gLen])
	if len(params) != fixed+1+gLen+1+hLen {
		return nil, false, false
	}
	v.targetConfig = slices.Clone(params)

	if v.initiator == nil {
		return nil, false, true
	}
	return append([]byte{v.initiator.mode}, v.initiator.command...), true, true
}

func (v *VirtualPN532) targetGetData() []byte {
	if v.initiator == nil || len(v.initiator.data) == 0 {
		return []byte{statusReleased}
	}
	next := v.initiator.data[0]
	v.initiator.data = v.initiator.data[1:]
	return append([]byte{statusOK}, next...)
}

func (v *VirtualPN532) targetSetData(params []byte) []byte {
	if v.initiator == nil {
		return []byte{statusReleased}
	}
	v.initiator.received = append(v.initiator.received, slices.Clone(params))
	return []byte{statusOK}
}
