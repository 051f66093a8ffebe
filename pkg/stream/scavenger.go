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
	"sync/atomic"
	"time"

	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/log"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

const (
	// ScavengerRecvTimeout is the internal acquire timeout of the
	// worker loop. Short so the raiding flag is observed promptly.
	ScavengerRecvTimeout = 100 * time.Millisecond
)

// Scavenger drains one data transport, routing TX async status
// reports to the async FIFO and data frames to the alignment buffer.
// One scavenger runs per data transport.
type Scavenger struct {
	index     int
	transport transport.FrameTransport
	buffer    *AlignmentBuffer
	asyncFIFO *AsyncFIFO
	tickRate  float64
	stats     *Stats

	// raiding is shared by all scavengers of a device; cleared at
	// shutdown.
	raiding *atomic.Bool

	// OverflowHook is invoked asynchronously once per detected
	// sequence gap. Optional.
	OverflowHook func(channel int)

	expectedSeq uint8
}

func NewScavenger(
	index int,
	t transport.FrameTransport,
	buffer *AlignmentBuffer,
	asyncFIFO *AsyncFIFO,
	tickRate float64,
	stats *Stats,
	raiding *atomic.Bool,
) *Scavenger {
	return &Scavenger{
		index:     index,
		transport: t,
		buffer:    buffer,
		asyncFIFO: asyncFIFO,
		tickRate:  tickRate,
		stats:     stats,
		raiding:   raiding,
	}
}

// ResetSeq rearms the expected sequence counter after a device-side
// sequence clear.
func (s *Scavenger) ResetSeq() {
	s.expectedSeq = 0
}

// Run is the worker loop. It returns when the raiding flag is cleared
// or on a protocol invariant violation. Every acquired frame is
// released or handed off on every exit path.
func (s *Scavenger) Run() {
	log.Debug("Scavenger running: stream: %d", s.index)
	for s.raiding.Load() {
		frame, err := s.transport.AcquireRecvFrame(ScavengerRecvTimeout)
		if err != nil {
			log.Error("Scavenger transport error: stream: %d error: %s", s.index, err)
			continue
		}
		if frame == nil {
			continue
		}
		if !s.handleFrame(frame) {
			return
		}
	}
	log.Debug("Scavenger done: stream: %d", s.index)
}

// handleFrame classifies one frame. Returns false when the worker
// must terminate.
func (s *Scavenger) handleFrame(frame *transport.Frame) bool {
	data := frame.Bytes()
	info := layers.IfPacketInfo{NumPacketWords32: uint16(len(data) / 4)}
	if err := layers.UnpackBE(data, &info); err != nil {
		log.Debug("Scavenger drop frame: stream: %d error: %s", s.index, err)
		s.stats.inc(&s.stats.MalformedFrames)
		frame.Release()
		return true
	}

	// TX async status reports arrive on the data port with the
	// reserved stream id and a non-data packet type.
	if info.SID == layers.AsyncSID && info.PacketType != layers.PacketTypeData {
		s.handleAsync(frame, data, &info)
		return true
	}

	if info.PacketCount != s.expectedSeq {
		log.Indicator("O")
		s.stats.inc(&s.stats.Overflows)
		if s.OverflowHook != nil {
			go s.OverflowHook(s.index)
		}
	}
	s.expectedSeq = (info.PacketCount + 1) % 16

	// The device contract guarantees both timestamps on data packets.
	if !info.HasTSI || !info.HasTSF {
		log.Error("Scavenger fatal: %s", ErrMissingTimestamp{Stream: s.index})
		frame.Release()
		return false
	}

	t := layers.NewTimeSpec(info.TSI, info.TSF, s.tickRate)
	s.buffer.Push(frame, t, s.index)
	return true
}

func (s *Scavenger) handleAsync(frame *transport.Frame, data []byte, info *layers.IfPacketInfo) {
	defer frame.Release()

	code, err := layers.GetContextCode(data, info)
	if err != nil {
		log.Debug("Scavenger drop async frame: stream: %d error: %s", s.index, err)
		s.stats.inc(&s.stats.MalformedFrames)
		return
	}

	metadata := AsyncMetadata{
		Channel:     s.index,
		HasTimeSpec: info.HasTSI && info.HasTSF,
		EventCode:   code,
	}
	if metadata.HasTimeSpec {
		metadata.TimeSpec = layers.NewTimeSpec(info.TSI, info.TSF, s.tickRate)
	}

	if code&layers.UnderflowFlags != 0 {
		log.Indicator("U")
		s.stats.inc(&s.stats.Underflows)
	}
	s.asyncFIFO.Push(metadata)
}
