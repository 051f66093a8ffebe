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
	"time"

	"github.com/sdrlab/go-usrp2/pkg/layers"
)

const (
	// AsyncFIFODepth bounds the TX async status queue.
	AsyncFIFODepth = 100
)

// AsyncMetadata is one TX asynchronous status report.
type AsyncMetadata struct {
	Channel     int
	HasTimeSpec bool
	TimeSpec    layers.TimeSpec
	EventCode   layers.EventCode
}

// AsyncFIFO is a bounded queue of async status reports with
// drop-oldest semantics on full. Producers are the scavengers, the
// sole consumer is the foreground async poll.
type AsyncFIFO struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []AsyncMetadata
	depth   int
	dropped uint64
}

func NewAsyncFIFO(depth int) *AsyncFIFO {
	f := &AsyncFIFO{
		buf:   make([]AsyncMetadata, 0, depth),
		depth: depth,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues a message, dropping the oldest when full. Never blocks.
func (f *AsyncFIFO) Push(m AsyncMetadata) {
	f.mu.Lock()
	if len(f.buf) == f.depth {
		f.buf = f.buf[1:]
		f.dropped++
	}
	f.buf = append(f.buf, m)
	f.mu.Unlock()
	f.cond.Signal()
}

// Pop dequeues the oldest message, waiting up to timeout.
func (f *AsyncFIFO) Pop(timeout time.Duration) (AsyncMetadata, bool) {
	deadline := time.Now().Add(timeout)
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return AsyncMetadata{}, false
		}
		timedWait(f.cond, remaining)
	}
	m := f.buf[0]
	f.buf = f.buf[1:]
	return m, true
}

// Dropped returns the number of messages lost to backpressure.
func (f *AsyncFIFO) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// timedWait waits on cond for at most d. The caller must hold the
// lock and re-check its predicate: wakeups may be spurious.
func timedWait(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	cond.Wait()
	timer.Stop()
}
