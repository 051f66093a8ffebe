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
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

// fakeTransport is an in-memory frame channel for tests. Recv frames
// are queued by the test; committed send frames are captured as byte
// copies.
type fakeTransport struct {
	mu    sync.Mutex
	recvQ []*transport.Frame
	sent  [][]byte

	sendFrameSize int
	recvFrameSize int
	numRecvFrames int
	sendBlocked   bool
}

var _ transport.FrameTransport = &fakeTransport{}

func newFakeTransport(sendFrameSize int) *fakeTransport {
	return &fakeTransport{
		sendFrameSize: sendFrameSize,
		recvFrameSize: sendFrameSize,
		numRecvFrames: 32,
	}
}

func (t *fakeTransport) queue(f *transport.Frame) {
	t.mu.Lock()
	t.recvQ = append(t.recvQ, f)
	t.mu.Unlock()
}

func (t *fakeTransport) AcquireRecvFrame(timeout time.Duration) (*transport.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.recvQ) == 0 {
		return nil, nil
	}
	f := t.recvQ[0]
	t.recvQ = t.recvQ[1:]
	return f, nil
}

func (t *fakeTransport) AcquireSendFrame(timeout time.Duration) (*transport.Frame, error) {
	t.mu.Lock()
	blocked := t.sendBlocked
	t.mu.Unlock()
	if blocked {
		return nil, nil
	}
	return transport.NewFrame(
		make([]byte, t.sendFrameSize),
		nil,
		func(f *transport.Frame, length int) error {
			t.mu.Lock()
			t.sent = append(t.sent, append([]byte{}, f.Bytes()[:length]...))
			t.mu.Unlock()
			return nil
		},
	), nil
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

func (t *fakeTransport) NumRecvFrames() int { return t.numRecvFrames }
func (t *fakeTransport) RecvFrameSize() int { return t.recvFrameSize }
func (t *fakeTransport) SendFrameSize() int { return t.sendFrameSize }
func (t *fakeTransport) Interrupt()         {}
func (t *fakeTransport) Close() error       { return nil }

// trackedFrame wraps packet bytes in a frame whose release bumps a
// counter, so tests can assert the exactly-one-release invariant.
func trackedFrame(data []byte, released *int32) *transport.Frame {
	return transport.NewFrame(data, func(*transport.Frame) {
		atomic.AddInt32(released, 1)
	}, nil)
}

// dataPacket builds an RX data packet: header with both timestamps,
// given 4-bit count, ramp payload of numSamps sc16 samples, trailer.
func dataPacket(t *testing.T, count uint8, tsi uint32, tsf uint64, numSamps int) []byte {
	t.Helper()
	info := layers.IfPacketInfo{
		PacketType:        layers.PacketTypeData,
		HasSID:            true,
		SID:               0x30,
		HasTrailer:        true,
		PacketCount:       count,
		HasTSI:            true,
		HasTSF:            true,
		TSI:               tsi,
		TSF:               tsf,
		NumPayloadWords32: uint16(numSamps),
	}
	hdr := make([]byte, layers.MaxIfHdrWords32*4)
	hdrWords, err := layers.PackBE(&info, hdr)
	require.NoError(t, err)

	data := hdr[:hdrWords*4]
	for i := 0; i < numSamps; i++ {
		data = binary.BigEndian.AppendUint16(data, uint16(int16(i)))
		data = binary.BigEndian.AppendUint16(data, uint16(int16(-i)))
	}
	return binary.BigEndian.AppendUint32(data, 0) // trailer
}

// asyncPacket builds a TX async status report carried as a context
// packet on the reserved stream id.
func asyncPacket(t *testing.T, code layers.EventCode, withTime bool) []byte {
	t.Helper()
	info := layers.IfPacketInfo{
		PacketType:        layers.PacketTypeIfContext,
		HasSID:            true,
		SID:               layers.AsyncSID,
		HasTSI:            withTime,
		HasTSF:            withTime,
		TSI:               3,
		TSF:               500,
		NumPayloadWords32: 1,
	}
	hdr := make([]byte, layers.MaxIfHdrWords32*4)
	hdrWords, err := layers.PackBE(&info, hdr)
	require.NoError(t, err)
	return binary.BigEndian.AppendUint32(hdr[:hdrWords*4], uint32(code))
}

func newTestScavenger(index int, buffer *AlignmentBuffer, fifo *AsyncFIFO) *Scavenger {
	raiding := &atomic.Bool{}
	raiding.Store(true)
	return NewScavenger(index, newFakeTransport(1472), buffer, fifo, 100e6, &Stats{}, raiding)
}
