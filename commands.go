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

import "fmt"

// PN532 command codes (User Manual §7, Table 12). The response to command X
// always carries the code X+1.
const (
	cmdDiagnose              = 0x00
	cmdGetFirmwareVersion    = 0x02
	cmdGetGeneralStatus      = 0x04
	cmdReadRegister          = 0x06
	cmdWriteRegister         = 0x08
	cmdReadGPIO              = 0x0C
	cmdWriteGPIO             = 0x0E
	cmdSetSerialBaudRate     = 0x10
	cmdSetParameters         = 0x12
	cmdSAMConfiguration      = 0x14
	cmdPowerDown             = 0x16
	cmdRFConfiguration       = 0x32
	cmdRFRegulationTest      = 0x58
	cmdInJumpForDEP          = 0x56
	cmdInJumpForPSL          = 0x46
	cmdInListPassiveTarget   = 0x4A
	cmdInATR                 = 0x50
	cmdInPSL                 = 0x4E
	cmdInDataExchange        = 0x40
	cmdInCommunicateThru     = 0x42
	cmdInDeselect            = 0x44
	cmdInRelease             = 0x52
	cmdInSelect              = 0x54
	cmdInAutoPoll            = 0x60
	cmdTgInitAsTarget        = 0x8C
	cmdTgSetGeneralBytes     = 0x92
	cmdTgGetData             = 0x86
	cmdTgSetData             = 0x8E
	cmdTgSetMetaData         = 0x94
	cmdTgGetInitiatorCommand = 0x88
	cmdTgResponseToInitiator = 0x90
	cmdTgGetTargetStatus     = 0x8A
)

// Mifare commands carried inside InDataExchange
const (
	mifareCmdAuthA           = 0x60
	mifareCmdAuthB           = 0x61
	mifareCmdRead            = 0x30
	mifareCmdWrite           = 0xA0
	mifareCmdTransfer        = 0xB0
	mifareCmdDecrement       = 0xC0
	mifareCmdIncrement       = 0xC1
	mifareCmdStore           = 0xC2
	mifareUltralightCmdWrite = 0xA2
)

// PowerDown wake-up sources
const (
	WakeupHSU     byte = 0x01 // High Speed UART
	WakeupSPI     byte = 0x02
	WakeupI2C     byte = 0x04
	WakeupGPIOP32 byte = 0x08
	WakeupGPIOP34 byte = 0x10
	WakeupRF      byte = 0x20
	WakeupINT1    byte = 0x80 // GPIO P72/INT1
)

var commandNames = map[byte]string{
	cmdDiagnose:              "Diagnose",
	cmdGetFirmwareVersion:    "GetFirmwareVersion",
	cmdGetGeneralStatus:      "GetGeneralStatus",
	cmdReadRegister:          "ReadRegister",
	cmdWriteRegister:         "WriteRegister",
	cmdReadGPIO:              "ReadGPIO",
	cmdWriteGPIO:             "WriteGPIO",
	cmdSetSerialBaudRate:     "SetSerialBaudRate",
	cmdSetParameters:         "SetParameters",
	cmdSAMConfiguration:      "SAMConfiguration",
	cmdPowerDown:             "PowerDown",
	cmdRFConfiguration:       "RFConfiguration",
	cmdRFRegulationTest:      "RFRegulationTest",
	cmdInJumpForDEP:          "InJumpForDEP",
	cmdInJumpForPSL:          "InJumpForPSL",
	cmdInListPassiveTarget:   "InListPassiveTarget",
	cmdInATR:                 "InATR",
	cmdInPSL:                 "InPSL",
	cmdInDataExchange:        "InDataExchange",
	cmdInCommunicateThru:     "InCommunicateThru",
	cmdInDeselect:            "InDeselect",
	cmdInRelease:             "InRelease",
	cmdInSelect:              "InSelect",
	cmdInAutoPoll:            "InAutoPoll",
	cmdTgInitAsTarget:        "TgInitAsTarget",
	cmdTgSetGeneralBytes:     "TgSetGeneralBytes",
	cmdTgGetData:             "TgGetData",
	cmdTgSetData:             "TgSetData",
	cmdTgSetMetaData:         "TgSetMetaData",
	cmdTgGetInitiatorCommand: "TgGetInitiatorCommand",
	cmdTgResponseToInitiator: "TgResponseToInitiator",
	cmdTgGetTargetStatus:     "TgGetTargetStatus",
}

// commandName returns the manual's name for a command code.
func commandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("command 0x%02X", cmd)
}
