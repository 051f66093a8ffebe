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

package config

const (
	ConfigDir  = ".go-usrp2"
	ConfigFile = "config"
	DBFile     = "regs.db"

	DefaultIP       = "0.0.0.0"
	DefaultLogLevel = "info"

	// DefaultMasterClockRate is the fixed 100 MHz reference of the
	// USRP2 motherboard.
	DefaultMasterClockRate = 100e6

	DefaultUpsPerSec  = 20.0
	DefaultUpsPerFifo = 8.0

	MimoModeMaster = "master"
	MimoModeSlave  = "slave"
	MimoModeAuto   = "auto"

	// Fixed UDP endpoints of the motherboard.
	CtrlPort = 49152
	Dsp0Port = 49156
	Dsp1Port = 49157
	Err0Port = 49158

	// Transport pool geometry. Frame sizes are in bytes and cover one
	// UDP datagram: VRT header, payload and trailer.
	DefaultRecvFrameSize = 1472
	DefaultSendFrameSize = 1472
	DefaultNumRecvFrames = 32
	DefaultNumSendFrames = 32
)
