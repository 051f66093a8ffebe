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

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/log"
	"github.com/sdrlab/go-usrp2/pkg/stream"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

const (
	// TxStreamID is the stream id put on TX data packets.
	TxStreamID = 0
)

// Device is the host-side streaming endpoint. It owns the
// motherboards; the motherboards hold no reference to the device, and
// overflow routing goes through a device-owned callback.
type Device struct {
	cfg     *config.Config
	mboards []*Mboard

	dspXports []transport.FrameTransport

	buffer      *stream.AlignmentBuffer
	asyncFIFO   *stream.AsyncFIFO
	recvHandler *stream.RecvHandler
	sendHandler *stream.SendHandler
	scavengers  []*stream.Scavenger
	stats       *stream.Stats

	raiding atomic.Bool
	crew    sync.WaitGroup

	tickRate float64
}

// NewDevice assembles a device over already constructed motherboards.
func NewDevice(cfg *config.Config, mboards []*Mboard) *Device {
	d := &Device{
		cfg:     cfg,
		mboards: mboards,
		stats:   &stream.Stats{},
	}
	for _, m := range mboards {
		d.dspXports = append(d.dspXports, m.DspXports()...)
	}
	// all motherboards share the fixed-rate clock
	d.tickRate = mboards[0].cfg.MasterClockRate
	return d
}

func (d *Device) NumChannels() int { return len(d.dspXports) }

func (d *Device) Mboards() []*Mboard { return d.mboards }

func (d *Device) Stats() stream.Stats {
	s := d.stats.Snapshot()
	if d.buffer != nil {
		s.AlignmentDrops = d.buffer.Dropped()
	}
	if d.asyncFIFO != nil {
		s.AsyncDrops = d.asyncFIFO.Dropped()
	}
	return s
}

// InitIO brings every channel up to READY: probe transports, purge
// stale sequence state, program flow control, then spawn one
// scavenger per data transport around the alignment buffer.
func (d *Device) InitIO() error {
	for _, m := range d.mboards {
		if err := m.InitXports(); err != nil {
			return err
		}
		for dsp := range m.DspXports() {
			if err := m.SeqReset(dsp); err != nil {
				return err
			}
		}
		if err := m.SetupFlowControl(m.DspXports()[0].SendFrameSize()); err != nil {
			return err
		}
	}

	// the recv pool geometry is taken from the first transport, all
	// data transports are identical
	numFrames := d.dspXports[0].NumRecvFrames()
	width := len(d.dspXports)

	d.buffer = stream.NewAlignmentBuffer(numFrames-stream.MinFrameHeadroom, width)
	d.asyncFIFO = stream.NewAsyncFIFO(stream.AsyncFIFODepth)
	d.recvHandler = stream.NewRecvHandler(d.buffer, d.tickRate, d.stats)
	d.sendHandler = stream.NewSendHandler(d.dspXports, TxStreamID)

	d.raiding.Store(true)
	for i, xport := range d.dspXports {
		s := stream.NewScavenger(i, xport, d.buffer, d.asyncFIFO, d.tickRate, d.stats, &d.raiding)
		s.OverflowHook = d.routeOverflow
		d.scavengers = append(d.scavengers, s)
		d.crew.Add(1)
		go func() {
			defer d.crew.Done()
			s.Run()
		}()
	}

	for _, m := range d.mboards {
		m.MarkReady()
	}
	log.Info("Streaming I/O ready: channels: %d alignment depth: %d", width, numFrames-stream.MinFrameHeadroom)
	return nil
}

// routeOverflow maps a global channel index onto its motherboard.
func (d *Device) routeOverflow(channel int) {
	d.mboards[channel/NumRxDsps].HandleOverflow(channel % NumRxDsps)
}

// Recv delivers aligned received samples into one buffer per channel.
func (d *Device) Recv(buffs [][]byte, numSamps int, md *stream.RecvMetadata, ioType stream.IOType, mode stream.RecvMode, timeout time.Duration) int {
	return d.recvHandler.Recv(buffs, numSamps, md, ioType, mode, timeout)
}

// Send fragments and transmits one buffer per channel.
func (d *Device) Send(buffs [][]byte, numSamps int, md *stream.SendMetadata, ioType stream.IOType, mode stream.SendMode, timeout time.Duration) (int, error) {
	return d.sendHandler.Send(buffs, numSamps, md, ioType, mode, timeout)
}

// RecvAsyncMsg polls the TX async status queue.
func (d *Device) RecvAsyncMsg(timeout time.Duration) (stream.AsyncMetadata, bool) {
	return d.asyncFIFO.Pop(timeout)
}

// PollErr drains one datagram from a motherboard's error channel.
func (d *Device) PollErr(mboard int, timeout time.Duration) ([]byte, error) {
	return d.mboards[mboard].PollErr(timeout)
}

// MaxSendSampsPerPacket ...
func (d *Device) MaxSendSampsPerPacket() int {
	return d.sendHandler.MaxSampsPerPacket()
}

// MaxRecvSampsPerPacket ...
func (d *Device) MaxRecvSampsPerPacket() int {
	return stream.MaxSampsPerPacket(d.dspXports[0].RecvFrameSize())
}

// IssueStreamCmd forwards a stream command to the owning motherboard
// of a global channel index.
func (d *Device) IssueStreamCmd(cmd StreamCmd, channel int) error {
	return d.mboards[channel/NumRxDsps].IssueStreamCmd(cmd, channel%NumRxDsps)
}

// Close tears the pipeline down: stop the raiding crew, interrupt
// blocked transport reads, join, release pinned frames, then zero the
// flow-control registers. Safe to call once.
func (d *Device) Close() {
	for _, m := range d.mboards {
		m.BeginDrain()
	}

	d.raiding.Store(false)
	for _, xport := range d.dspXports {
		xport.Interrupt()
	}
	d.crew.Wait()

	if d.recvHandler != nil {
		d.recvHandler.Reset()
	}
	if d.buffer != nil {
		d.buffer.Close()
	}

	for _, m := range d.mboards {
		m.TeardownFlowControl()
	}
	for _, xport := range d.dspXports {
		if err := xport.Close(); err != nil {
			log.Debug("Transport close: %s", err)
		}
	}
	for _, m := range d.mboards {
		if errXport := m.ErrXport(); errXport != nil {
			if err := errXport.Close(); err != nil {
				log.Debug("Transport close: %s", err)
			}
		}
	}
	log.Info("Streaming I/O closed")
}
