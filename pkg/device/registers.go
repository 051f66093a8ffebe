/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package device

type RegAlias int

const (
	RegTxCtrlCyclesPerUp RegAlias = iota
	RegTxCtrlPacketsPerUp
	RegRxCtrlStreamCmd0
	RegRxCtrlTimeSecs0
	RegRxCtrlTimeTicks0
	RegRxCtrlClear0
	RegRxCtrlStreamCmd1
	RegRxCtrlTimeSecs1
	RegRxCtrlTimeTicks1
	RegRxCtrlClear1
	RegTime64Secs
	RegTime64Ticks
	RegTime64Flags
	RegTime64Imm
	RegTime64MimoSync
	RegStatus
	RegDspRxMux
	RegDspTxMux
)

// RegMap maps register aliases to settings-bus addresses.
var RegMap = map[RegAlias]uint32{
	RegTxCtrlCyclesPerUp:  0xD400 + 4*1,
	RegTxCtrlPacketsPerUp: 0xD400 + 4*2,
	RegRxCtrlStreamCmd0:   0xD000 + 4*0,
	RegRxCtrlTimeSecs0:    0xD000 + 4*1,
	RegRxCtrlTimeTicks0:   0xD000 + 4*2,
	RegRxCtrlClear0:       0xD000 + 4*3,
	RegRxCtrlStreamCmd1:   0xD080 + 4*0,
	RegRxCtrlTimeSecs1:    0xD080 + 4*1,
	RegRxCtrlTimeTicks1:   0xD080 + 4*2,
	RegRxCtrlClear1:       0xD080 + 4*3,
	RegTime64Secs:         0xD200 + 4*0,
	RegTime64Ticks:        0xD200 + 4*1,
	RegTime64Flags:        0xD200 + 4*2,
	RegTime64Imm:          0xD200 + 4*3,
	RegTime64MimoSync:     0xD200 + 4*4,
	RegStatus:             0xCC00 + 4*1,
	RegDspRxMux:           0xCE00 + 4*8,
	RegDspTxMux:           0xCF00 + 4*8,
}

const (
	// FlagTxCtrlUpEnb enables flow-control updates; or'd with the
	// cycle or packet count.
	FlagTxCtrlUpEnb = uint32(1) << 31

	// FlagStatusMimoMaster is set in the status register when the
	// motherboard drives the shared MIMO clock.
	FlagStatusMimoMaster = uint32(1) << 8

	// NumRxDsps is the number of DSP data channels per motherboard.
	NumRxDsps = 2

	// SramBytes is the size of the TX buffering SRAM, the basis of
	// the packets-per-update flow-control granularity.
	SramBytes = 1 << 20
)

// RxCtrlStreamCmdReg returns the stream command register of a DSP.
func RxCtrlStreamCmdReg(dsp int) uint32 {
	if dsp == 0 {
		return RegMap[RegRxCtrlStreamCmd0]
	}
	return RegMap[RegRxCtrlStreamCmd1]
}

func RxCtrlTimeSecsReg(dsp int) uint32 {
	if dsp == 0 {
		return RegMap[RegRxCtrlTimeSecs0]
	}
	return RegMap[RegRxCtrlTimeSecs1]
}

func RxCtrlTimeTicksReg(dsp int) uint32 {
	if dsp == 0 {
		return RegMap[RegRxCtrlTimeTicks0]
	}
	return RegMap[RegRxCtrlTimeTicks1]
}

// RxCtrlClearReg returns the sequence-clear register of a DSP.
func RxCtrlClearReg(dsp int) uint32 {
	if dsp == 0 {
		return RegMap[RegRxCtrlClear0]
	}
	return RegMap[RegRxCtrlClear1]
}
