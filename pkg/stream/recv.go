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

package stream

import (
	"time"

	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/log"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

type RecvMode int

const (
	// RecvModeOnePacket returns as soon as one packet is consumed.
	RecvModeOnePacket RecvMode = iota
	// RecvModeFull returns when the requested sample count is filled.
	RecvModeFull
)

type RxErrorCode int

const (
	RxErrorNone RxErrorCode = iota
	RxErrorTimeout
)

// RecvMetadata describes the samples returned by one Recv call.
type RecvMetadata struct {
	HasTimeSpec  bool
	TimeSpec     layers.TimeSpec
	StartOfBurst bool
	EndOfBurst   bool
	ErrorCode    RxErrorCode
}

// recvCursor pins a partially consumed aligned set across Recv calls.
type recvCursor struct {
	frames   []*transport.Frame
	infos    []layers.IfPacketInfo
	consumed int
}

// RecvHandler converts aligned frame sets into user samples. It is
// the sole consumer of the alignment buffer and is not safe for
// concurrent use.
type RecvHandler struct {
	buffer   *AlignmentBuffer
	tickRate float64
	stats    *Stats
	cursor   recvCursor
}

func NewRecvHandler(buffer *AlignmentBuffer, tickRate float64, stats *Stats) *RecvHandler {
	return &RecvHandler{
		buffer:   buffer,
		tickRate: tickRate,
		stats:    stats,
	}
}

// Recv fills one user buffer per channel with up to numSamps samples,
// converting from the over-the-wire type to ioType. A partial packet
// stays pinned for the next call. On timeout with nothing consumed the
// metadata error code is set and 0 is returned.
func (h *RecvHandler) Recv(buffs [][]byte, numSamps int, md *RecvMetadata, ioType IOType, mode RecvMode, timeout time.Duration) int {
	*md = RecvMetadata{}
	total := 0

	for total < numSamps {
		if h.cursor.frames == nil {
			frames, ok := h.buffer.PopAligned(timeout)
			if !ok {
				if total == 0 {
					md.ErrorCode = RxErrorTimeout
				}
				return total
			}
			if !h.pinAligned(frames) {
				continue
			}
		}

		info := &h.cursor.infos[0]
		if total == 0 {
			md.HasTimeSpec = info.HasTSI && info.HasTSF
			md.TimeSpec = layers.NewTimeSpec(info.TSI, info.TSF, h.tickRate)
			md.StartOfBurst = info.SOB
			md.EndOfBurst = info.EOB
		}

		packetSamps := int(info.NumPayloadWords32)
		n := packetSamps - h.cursor.consumed
		if n > numSamps-total {
			n = numSamps - total
		}

		for ch, frame := range h.cursor.frames {
			chInfo := &h.cursor.infos[ch]
			payload := frame.Bytes()[int(chInfo.NumHeaderWords32)*4:]
			otwToUser(
				payload[h.cursor.consumed*OTWSampleSize:],
				buffs[ch][total*ioType.SampleSize():],
				n, ioType,
			)
		}
		h.cursor.consumed += n
		total += n

		if h.cursor.consumed == packetSamps {
			h.releaseCursor()
			if mode == RecvModeOnePacket {
				return total
			}
		}
	}
	return total
}

// pinAligned decodes the headers of a fresh aligned set. Returns
// false (releasing the set) if any header fails to decode.
func (h *RecvHandler) pinAligned(frames []*transport.Frame) bool {
	infos := make([]layers.IfPacketInfo, len(frames))
	for ch, frame := range frames {
		data := frame.Bytes()
		infos[ch] = layers.IfPacketInfo{NumPacketWords32: uint16(len(data) / 4)}
		if err := layers.UnpackBE(data, &infos[ch]); err != nil {
			log.Error("Recv drop aligned set: channel: %d error: %s", ch, err)
			h.stats.inc(&h.stats.MalformedFrames)
			for _, f := range frames {
				f.Release()
			}
			return false
		}
	}
	h.cursor = recvCursor{frames: frames, infos: infos}
	h.stats.inc(&h.stats.AlignedTuples)
	return true
}

func (h *RecvHandler) releaseCursor() {
	for _, f := range h.cursor.frames {
		f.Release()
	}
	h.cursor = recvCursor{}
}

// Reset drops any pinned set, releasing its frames. Used at teardown.
func (h *RecvHandler) Reset() {
	if h.cursor.frames != nil {
		h.releaseCursor()
	}
}
