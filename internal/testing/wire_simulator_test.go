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

//nolint:varnamelen // Test file - short vars acceptable
package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-pn532-core/internal/frame"
)

func commandFrame(t *testing.T, cmd byte, params ...byte) []byte {
	t.Helper()
	raw, err := frame.Encode(append([]byte{frame.HostToPN532, cmd}, params...))
	require.NoError(t, err)
	return raw
}

// exchange writes one command and returns the decoded response data after
// the response code, checking the ACK on the way.
func exchange(t *testing.T, sim *VirtualPN532, cmd byte, params ...byte) []byte {
	t.Helper()
	require.NoError(t, sim.Write(commandFrame(t, cmd, params...)))

	ready, err := sim.Ready()
	require.NoError(t, err)
	require.True(t, ready, "no ACK queued")
	ack, err := sim.Read(frame.AckLength)
	require.NoError(t, err)
	require.Equal(t, frame.AckFrame, ack)

	ready, err = sim.Ready()
	require.NoError(t, err)
	require.True(t, ready, "no response queued")
	raw, err := sim.Read(300)
	require.NoError(t, err)
	payload, err := frame.Decode(raw)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(payload), 2)
	require.Equal(t, byte(frame.PN532ToHost), payload[0])
	require.Equal(t, cmd+1, payload[1])
	return payload[2:]
}

func TestVirtualPN532_GetFirmwareVersion(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	assert.Equal(t, []byte{0x32, 0x01, 0x06, 0x07}, exchange(t, sim, cmdGetFirmwareVersion))

	sim.SetFirmwareVersion(0x32, 0x01, 0x04, 0x03)
	assert.Equal(t, []byte{0x32, 0x01, 0x04, 0x03}, exchange(t, sim, cmdGetFirmwareVersion))
}

func TestVirtualPN532_SAMConfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       byte
		configured bool
	}{
		{name: "normal", mode: 0x01, configured: true},
		{name: "virtual_card", mode: 0x02, configured: true},
		{name: "dual_card", mode: 0x04, configured: true},
		{name: "invalid", mode: 0x05, configured: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sim := NewVirtualPN532()
			require.NoError(t, sim.Write(commandFrame(t, cmdSAMConfiguration, tt.mode, 0x14, 0x01)))

			ack, err := sim.Read(6)
			require.NoError(t, err)
			require.Equal(t, frame.AckFrame, ack)
			raw, err := sim.Read(64)
			require.NoError(t, err)
			payload, err := frame.Decode(raw)
			require.NoError(t, err)

			if tt.configured {
				assert.Equal(t, []byte{frame.PN532ToHost, cmdSAMConfiguration + 1}, payload)
			} else {
				assert.Equal(t, []byte{frame.ErrorFrameTFI}, payload)
			}
			assert.Equal(t, tt.configured, sim.State().SAMConfigured)
		})
	}
}

func TestVirtualPN532_InListPassiveTarget(t *testing.T) {
	t.Parallel()

	t.Run("no_tag", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		assert.Equal(t, []byte{0x00}, exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00))
		assert.True(t, sim.State().RFFieldOn)
	})

	t.Run("ntag", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.AddTag(NewVirtualNTAG213(nil))
		resp := exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00)
		want := append([]byte{0x01, 0x01, 0x00, 0x44, 0x00, 0x07}, TestNTAG213UID...)
		assert.Equal(t, want, resp)
		assert.Equal(t, 1, sim.State().SelectedTarget)
	})

	t.Run("mifare", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.AddTag(NewVirtualMIFARE1K(nil))
		resp := exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00)
		want := append([]byte{0x01, 0x01, 0x00, 0x04, 0x08, 0x04}, TestMIFARE1KUID...)
		assert.Equal(t, want, resp)
	})

	t.Run("removed_tag_is_not_listed", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		tag := NewVirtualNTAG213(nil)
		tag.Remove()
		sim.AddTag(tag)
		assert.Equal(t, []byte{0x00}, exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00))
	})

	t.Run("max_targets_respected", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.AddTag(NewVirtualNTAG213(nil))
		sim.AddTag(NewVirtualMIFARE1K(nil))
		assert.Equal(t, byte(1), exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00)[0])
		assert.Equal(t, byte(2), exchange(t, sim, cmdInListPassiveTarget, 0x02, 0x00)[0])
	})
}

func TestVirtualPN532_InDataExchange(t *testing.T) {
	t.Parallel()

	t.Run("without_selection", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.AddTag(NewVirtualNTAG213(nil))
		assert.Equal(t, []byte{statusReleased}, exchange(t, sim, cmdInDataExchange, 0x01, 0x30, 0x04))
	})

	t.Run("ntag_read", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.AddTag(NewVirtualNTAG213(nil))
		exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00)

		resp := exchange(t, sim, cmdInDataExchange, 0x01, 0x30, 0x03)
		require.Len(t, resp, 17)
		assert.Equal(t, byte(statusOK), resp[0])
		assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00}, resp[1:5])
	})

	t.Run("card_left_field", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		tag := NewVirtualNTAG213(nil)
		sim.AddTag(tag)
		exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00)
		tag.Remove()
		assert.Equal(t, []byte{statusNoCard}, exchange(t, sim, cmdInDataExchange, 0x01, 0x30, 0x04))
	})

	t.Run("release_clears_selection", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.AddTag(NewVirtualNTAG213(nil))
		exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00)
		assert.Equal(t, []byte{statusOK}, exchange(t, sim, cmdInRelease, 0x00))
		assert.Equal(t, 0, sim.State().SelectedTarget)
	})
}

func TestVirtualPN532_GPIO(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	sim.SetGPIO(0x01, 0x02, 0x03)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, exchange(t, sim, cmdReadGPIO))

	// P3 validated, P7 left alone
	exchange(t, sim, cmdWriteGPIO, 0x80|0x24, 0x00)
	assert.Equal(t, [3]byte{0x24, 0x02, 0x03}, sim.GPIO())

	// bits outside the port are dropped
	exchange(t, sim, cmdWriteGPIO, 0x00, 0x80|0xFF)
	assert.Equal(t, [3]byte{0x24, 0x06, 0x03}, sim.GPIO())
}

func TestVirtualPN532_RFConfiguration(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	exchange(t, sim, cmdRFConfiguration, 0x01, 0x01)
	assert.True(t, sim.State().RFFieldOn)
	exchange(t, sim, cmdRFConfiguration, 0x01, 0x00)
	assert.False(t, sim.State().RFFieldOn)
	exchange(t, sim, cmdRFConfiguration, 0x05, 0xFF, 0x01, 0x0A)
	assert.Equal(t, byte(0x0A), sim.State().MaxRetries)
}

func TestVirtualPN532_PowerDown(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	assert.Equal(t, []byte{statusOK}, exchange(t, sim, cmdPowerDown, 0x20))
	assert.Equal(t, PowerModePowerDown, sim.State().PowerMode)

	// a sleeping chip ignores commands until woken
	require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
	ready, err := sim.Ready()
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, sim.Wakeup())
	assert.Equal(t, 1, sim.WakeupCount())
	exchange(t, sim, cmdGetFirmwareVersion)
}

func TestVirtualPN532_TargetMode(t *testing.T) {
	t.Parallel()

	params := make([]byte, 1+6+18+10)
	params[0] = 0x04
	params = append(params, 0x00, 0x00)

	t.Run("silent_without_initiator", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		require.NoError(t, sim.Write(commandFrame(t, cmdTgInitAsTarget, params...)))
		ack, err := sim.Read(6)
		require.NoError(t, err)
		require.Equal(t, frame.AckFrame, ack)
		ready, err := sim.Ready()
		require.NoError(t, err)
		assert.False(t, ready)
		assert.Equal(t, params, sim.TargetConfig())
	})

	t.Run("activation_and_data", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.SetInitiator(0x08, []byte{0xE0, 0x80}, []byte{0x00, 0xA4})
		assert.Equal(t, []byte{0x08, 0xE0, 0x80}, exchange(t, sim, cmdTgInitAsTarget, params...))
		assert.Equal(t, []byte{statusOK, 0x00, 0xA4}, exchange(t, sim, cmdTgGetData))
		assert.Equal(t, []byte{statusReleased}, exchange(t, sim, cmdTgGetData))
		assert.Equal(t, []byte{statusOK}, exchange(t, sim, cmdTgSetData, 0x90, 0x00))
		assert.Equal(t, [][]byte{{0x90, 0x00}}, sim.TargetReceived())
	})

	t.Run("malformed_is_syntax_error", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		require.NoError(t, sim.Write(commandFrame(t, cmdTgInitAsTarget, 0x04, 0x00)))
		_, err := sim.Read(6)
		require.NoError(t, err)
		raw, err := sim.Read(64)
		require.NoError(t, err)
		payload, err := frame.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, []byte{frame.ErrorFrameTFI}, payload)
	})
}

func TestVirtualPN532_Faults(t *testing.T) {
	t.Parallel()

	t.Run("write_error", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultWriteError)
		require.ErrorIs(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)), ErrInjectedWrite)
		assert.Empty(t, sim.Commands())
	})

	t.Run("drop_ack", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultDropACK)
		require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
		ready, err := sim.Ready()
		require.NoError(t, err)
		assert.False(t, ready)
	})

	t.Run("bad_ack", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultBadACK)
		require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
		ack, err := sim.Read(6)
		require.NoError(t, err)
		assert.NotEqual(t, frame.AckFrame, ack)
	})

	t.Run("nack", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultNACK)
		require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
		ack, err := sim.Read(6)
		require.NoError(t, err)
		assert.True(t, frame.IsNack(ack))
	})

	t.Run("bad_echo", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultBadEcho)
		require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
		_, err := sim.Read(6)
		require.NoError(t, err)
		raw, err := sim.Read(64)
		require.NoError(t, err)
		payload, err := frame.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, byte(cmdGetFirmwareVersion+3), payload[1])
	})

	t.Run("checksum", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultChecksum)
		require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
		_, err := sim.Read(6)
		require.NoError(t, err)
		raw, err := sim.Read(64)
		require.NoError(t, err)
		_, err = frame.Decode(raw)
		require.ErrorIs(t, err, frame.ErrPayloadChecksum)
	})

	t.Run("faults_apply_once", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532()
		sim.InjectFault(FaultDropResponse)
		require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))
		_, err := sim.Read(6)
		require.NoError(t, err)
		ready, err := sim.Ready()
		require.NoError(t, err)
		assert.False(t, ready)

		exchange(t, sim, cmdGetFirmwareVersion)
	})
}

func TestVirtualPN532_NACKRetransmits(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	first := exchange(t, sim, cmdGetFirmwareVersion)

	require.NoError(t, sim.Write(frame.NackFrame))
	raw, err := sim.Read(64)
	require.NoError(t, err)
	payload, err := frame.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, first, payload[2:])
}

func TestVirtualPN532_OverrideResponse(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	sim.OverrideResponse(cmdInListPassiveTarget, []byte{0x02})
	assert.Equal(t, []byte{0x02}, exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00))
	assert.Equal(t, []byte{0x00}, exchange(t, sim, cmdInListPassiveTarget, 0x01, 0x00))
}

func TestVirtualPN532_ReadyDelay(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	sim.SetReadyDelay(2)
	require.NoError(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)))

	for range 2 {
		ready, err := sim.Ready()
		require.NoError(t, err)
		assert.False(t, ready)
	}
	ready, err := sim.Ready()
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestVirtualPN532_UnknownCommandAndGarbage(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()

	// unparseable bytes are ignored
	require.NoError(t, sim.Write([]byte{0x00, 0x00, 0xFF, 0x05, 0x00, 0xD4}))
	ready, err := sim.Ready()
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, sim.Write(commandFrame(t, 0x58)))
	_, err = sim.Read(6)
	require.NoError(t, err)
	raw, err := sim.Read(64)
	require.NoError(t, err)
	payload, err := frame.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{frame.ErrorFrameTFI}, payload)
}

func TestVirtualPN532_Close(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	require.NoError(t, sim.Close())
	assert.True(t, sim.Closed())
	require.ErrorIs(t, sim.Write(commandFrame(t, cmdGetFirmwareVersion)), ErrClosed)
	_, err := sim.Read(6)
	require.ErrorIs(t, err, ErrClosed)
	_, err = sim.Ready()
	require.ErrorIs(t, err, ErrClosed)
}

func TestVirtualPN532_CommandLog(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	_, ok := sim.LastCommand()
	assert.False(t, ok)

	exchange(t, sim, cmdSAMConfiguration, 0x01, 0x14, 0x01)
	cmd, ok := sim.LastCommand()
	require.True(t, ok)
	assert.Equal(t, Command{Code: cmdSAMConfiguration, Params: []byte{0x01, 0x14, 0x01}}, cmd)
	assert.Len(t, sim.Commands(), 1)
}
