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
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

type SendMode int

const (
	// SendModeOnePacket sends at most one packet per call.
	SendModeOnePacket SendMode = iota
	// SendModeFull fragments the whole request into packets.
	SendModeFull
)

// SendMetadata describes the burst position of the samples passed to
// one Send call.
type SendMetadata struct {
	StartOfBurst bool
	EndOfBurst   bool
	HasTimeSpec  bool
	TimeSpec     layers.TimeSpec
}

// SendHandler fragments user samples into IF packets, one frame per
// data transport per packet. Not safe for concurrent use.
type SendHandler struct {
	transports []transport.FrameTransport
	sid        uint32
	maxSamps   int
	pktCount   uint8
}

func NewSendHandler(transports []transport.FrameTransport, sid uint32) *SendHandler {
	maxSamps := MaxSampsPerPacket(transports[0].SendFrameSize())
	return &SendHandler{
		transports: transports,
		sid:        sid,
		maxSamps:   maxSamps,
	}
}

// MaxSampsPerPacket is the largest payload of a single packet.
func (h *SendHandler) MaxSampsPerPacket() int {
	return h.maxSamps
}

// Send fragments numSamps user samples into packets. The first packet
// of a burst carries SOB and the time spec; the last carries EOB. The
// 4-bit packet counter increments once per packet. If any of the N
// send frames cannot be acquired within timeout, the committed count
// is returned with ErrSendTimeout (0 when the first fragment fails).
func (h *SendHandler) Send(buffs [][]byte, numSamps int, md *SendMetadata, ioType IOType, mode SendMode, timeout time.Duration) (int, error) {
	if mode == SendModeOnePacket && numSamps > h.maxSamps {
		numSamps = h.maxSamps
	}

	total := 0
	for total < numSamps {
		thisSamps := numSamps - total
		if thisSamps > h.maxSamps {
			thisSamps = h.maxSamps
		}
		lastFragment := total+thisSamps == numSamps

		frames, errCh := h.acquireAll(timeout)
		if frames == nil {
			return total, ErrSendTimeout{Channel: errCh}
		}

		info := layers.IfPacketInfo{
			PacketType:        layers.PacketTypeData,
			HasSID:            true,
			SID:               h.sid,
			PacketCount:       h.pktCount,
			NumPayloadWords32: uint16(thisSamps),
			SOB:               md.StartOfBurst && total == 0,
			EOB:               md.EndOfBurst && lastFragment,
		}
		if md.HasTimeSpec && total == 0 {
			info.HasTSI = true
			info.HasTSF = true
			info.TSI, info.TSF = md.TimeSpec.Ticks()
		}

		for ch, frame := range frames {
			data := frame.Bytes()
			hdrWords, err := layers.PackBE(&info, data)
			if err != nil {
				// the descriptor is built locally, a pack failure
				// is a programming error
				for _, f := range frames[ch:] {
					f.Release()
				}
				return total, err
			}
			userToOTW(
				buffs[ch][total*ioType.SampleSize():],
				data[hdrWords*4:],
				thisSamps, ioType,
			)
			if err := frame.Commit((hdrWords + thisSamps) * 4); err != nil {
				for _, f := range frames[ch+1:] {
					f.Release()
				}
				return total, err
			}
		}

		h.pktCount = (h.pktCount + 1) % 16
		total += thisSamps

		if mode == SendModeOnePacket {
			break
		}
	}
	return total, nil
}

// acquireAll borrows one send frame per transport. On failure every
// acquired frame is released and the failing channel is returned.
func (h *SendHandler) acquireAll(timeout time.Duration) ([]*transport.Frame, int) {
	frames := make([]*transport.Frame, len(h.transports))
	for ch, t := range h.transports {
		frame, err := t.AcquireSendFrame(timeout)
		if err != nil || frame == nil {
			for _, f := range frames[:ch] {
				f.Release()
			}
			return nil, ch
		}
		frames[ch] = frame
	}
	return frames, 0
}
