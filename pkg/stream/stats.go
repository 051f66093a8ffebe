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

import "sync/atomic"

// Stats counts stream events. The event counters are updated
// atomically by the scavengers and the recv handler; the drop counters
// are filled from the alignment buffer and async FIFO by
// Device.Stats. The status API reads them.
type Stats struct {
	Overflows       uint64
	Underflows      uint64
	AlignedTuples   uint64
	AlignmentDrops  uint64
	AsyncDrops      uint64
	MalformedFrames uint64
}

func (s *Stats) inc(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

// Snapshot returns a consistent-enough copy for reporting.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Overflows:       atomic.LoadUint64(&s.Overflows),
		Underflows:      atomic.LoadUint64(&s.Underflows),
		AlignedTuples:   atomic.LoadUint64(&s.AlignedTuples),
		AlignmentDrops:  atomic.LoadUint64(&s.AlignmentDrops),
		AsyncDrops:      atomic.LoadUint64(&s.AsyncDrops),
		MalformedFrames: atomic.LoadUint64(&s.MalformedFrames),
	}
}
