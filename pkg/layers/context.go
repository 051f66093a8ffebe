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

package layers

import "encoding/binary"

// EventCode is the bitset carried in the payload of a TX async status
// report.
type EventCode uint32

const (
	EventCodeBurstAck          EventCode = 0x1
	EventCodeUnderflow         EventCode = 0x2
	EventCodeSeqError          EventCode = 0x4
	EventCodeTimeError         EventCode = 0x8
	EventCodeUnderflowInPacket EventCode = 0x10
	EventCodeSeqErrorInBurst   EventCode = 0x20
)

// UnderflowFlags matches any underflow style event.
const UnderflowFlags = EventCodeUnderflow | EventCodeUnderflowInPacket

// GetContextCode extracts the event code from the first payload word
// of a context packet. info must already be unpacked from data.
func GetContextCode(data []byte, info *IfPacketInfo) (EventCode, error) {
	if info.NumPayloadWords32 < 1 {
		return 0, ErrMalformedHeader{What: "context packet has no payload"}
	}
	word := binary.BigEndian.Uint32(data[int(info.NumHeaderWords32)*4:])
	return EventCode(word & 0xff), nil
}
