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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/log"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

// MinFrameHeadroom is how many recv frames must stay available to the
// transport while the alignment buffer is full, so the kernel side can
// keep refilling without deadlock. The buffer depth is derived as
// num_frames - MinFrameHeadroom.
const MinFrameHeadroom = 3

type alignEntry struct {
	frame *transport.Frame
	time  layers.TimeSpec
}

// AlignmentBuffer is a bounded multi-stream ring that delivers tuples
// of one recv frame per stream whose time specs match exactly. Each of
// the W producer streams has its own FIFO of depth D with drop-oldest
// on full. The sole consumer pops aligned tuples.
type AlignmentBuffer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	fifos [][]alignEntry
	width int
	depth int

	closed  bool
	dropped uint64
}

// NewAlignmentBuffer builds a buffer of the given depth for width
// producer streams.
func NewAlignmentBuffer(depth, width int) *AlignmentBuffer {
	if depth < 1 {
		depth = 1
	}
	b := &AlignmentBuffer{
		fifos: make([][]alignEntry, width),
		width: width,
		depth: depth,
	}
	for i := range b.fifos {
		b.fifos[i] = make([]alignEntry, 0, depth)
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *AlignmentBuffer) Width() int { return b.width }

// Push enqueues a frame on stream index, dropping the oldest entry of
// that stream when its FIFO is full. Ownership of the frame transfers
// to the buffer. Never blocks.
func (b *AlignmentBuffer) Push(frame *transport.Frame, t layers.TimeSpec, index int) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		frame.Release()
		return
	}
	fifo := b.fifos[index]
	if len(fifo) == b.depth {
		fifo[0].frame.Release()
		atomic.AddUint64(&b.dropped, 1)
		fifo = fifo[1:]
	}
	b.fifos[index] = append(fifo, alignEntry{frame: frame, time: t})
	b.mu.Unlock()
	b.cond.Signal()
}

// PopAligned returns one frame per stream with pairwise equal time
// specs, or false when the timeout expires. Streams whose head is
// older than the newest head are dropped until all heads agree; this
// guarantees forward progress and at most one alignment per time.
func (b *AlignmentBuffer) PopAligned(timeout time.Duration) ([]*transport.Frame, bool) {
	deadline := time.Now().Add(timeout)
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.closed {
			return nil, false
		}
		if aligned := b.tryAlign(); aligned != nil {
			return aligned, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timedWait(b.cond, remaining)
	}
}

// tryAlign runs one pass of the max-timestamp dropping aligner. The
// caller must hold the lock. Returns nil when some stream is empty.
func (b *AlignmentBuffer) tryAlign() []*transport.Frame {
	for {
		tMax := layers.TimeSpec{}
		for _, fifo := range b.fifos {
			if len(fifo) == 0 {
				return nil
			}
			if tMax.Less(fifo[0].time) {
				tMax = fifo[0].time
			}
		}

		allEqual := true
		for i, fifo := range b.fifos {
			if fifo[0].time.Less(tMax) {
				log.Debug("Alignment drop: stream: %d time: %f", i, fifo[0].time.Seconds())
				fifo[0].frame.Release()
				atomic.AddUint64(&b.dropped, 1)
				b.fifos[i] = fifo[1:]
				allEqual = false
			}
		}
		if !allEqual {
			continue
		}

		aligned := make([]*transport.Frame, b.width)
		for i, fifo := range b.fifos {
			aligned[i] = fifo[0].frame
			b.fifos[i] = fifo[1:]
		}
		return aligned
	}
}

// Dropped returns the number of frames discarded by overflow and
// alignment drops.
func (b *AlignmentBuffer) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Close releases every held frame and unblocks the consumer.
func (b *AlignmentBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	for i, fifo := range b.fifos {
		for _, e := range fifo {
			e.frame.Release()
		}
		b.fifos[i] = nil
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}
