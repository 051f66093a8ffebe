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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

const tickRate = 100e6

func ts(secs int64) layers.TimeSpec {
	return layers.TimeSpec{FullSecs: secs, TickRate: tickRate}
}

func TestAlignmentWithDrop(t *testing.T) {
	var released int32
	b := NewAlignmentBuffer(4, 2)

	// stream 0: times 10, 11, 12; stream 1: times 11, 12
	for _, secs := range []int64{10, 11, 12} {
		b.Push(trackedFrame([]byte{0}, &released), ts(secs), 0)
	}
	for _, secs := range []int64{11, 12} {
		b.Push(trackedFrame([]byte{1}, &released), ts(secs), 1)
	}

	// frame@10 dropped, tuple@11 delivered
	tuple, ok := b.PopAligned(100 * time.Millisecond)
	require.True(t, ok)
	require.Len(t, tuple, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&released))

	tuple2, ok := b.PopAligned(100 * time.Millisecond)
	require.True(t, ok)
	require.Len(t, tuple2, 2)

	// nothing else alignable
	_, ok = b.PopAligned(10 * time.Millisecond)
	assert.False(t, ok)

	assert.Equal(t, uint64(1), b.Dropped())
}

func TestAlignmentDeliversEqualTimes(t *testing.T) {
	b := NewAlignmentBuffer(8, 3)
	var released int32
	for stream := 0; stream < 3; stream++ {
		b.Push(trackedFrame([]byte{byte(stream)}, &released), ts(5), stream)
	}
	tuple, ok := b.PopAligned(100 * time.Millisecond)
	require.True(t, ok)
	assert.Len(t, tuple, 3)
	assert.Zero(t, atomic.LoadInt32(&released))
	for _, f := range tuple {
		f.Release()
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&released))
}

func TestAlignmentDropOldestOnFull(t *testing.T) {
	var released int32
	b := NewAlignmentBuffer(2, 1)

	b.Push(trackedFrame([]byte{0}, &released), ts(1), 0)
	b.Push(trackedFrame([]byte{1}, &released), ts(2), 0)
	// third push overflows the depth-2 FIFO, releasing the oldest
	b.Push(trackedFrame([]byte{2}, &released), ts(3), 0)
	assert.Equal(t, int32(1), atomic.LoadInt32(&released))

	tuple, ok := b.PopAligned(50 * time.Millisecond)
	require.True(t, ok)
	tuple[0].Release()

	tuple, ok = b.PopAligned(50 * time.Millisecond)
	require.True(t, ok)
	tuple[0].Release()

	assert.Equal(t, int32(3), atomic.LoadInt32(&released))
}

func TestAlignmentPopTimesOut(t *testing.T) {
	b := NewAlignmentBuffer(4, 2)
	var released int32
	// one stream stays empty, pop must block then time out
	b.Push(trackedFrame([]byte{0}, &released), ts(1), 0)

	start := time.Now()
	_, ok := b.PopAligned(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAlignmentUnblocksOnPush(t *testing.T) {
	b := NewAlignmentBuffer(4, 2)
	var released int32
	b.Push(trackedFrame([]byte{0}, &released), ts(7), 0)

	done := make(chan []*transport.Frame, 1)
	go func() {
		tuple, ok := b.PopAligned(2 * time.Second)
		if ok {
			done <- tuple
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Push(trackedFrame([]byte{1}, &released), ts(7), 1)

	select {
	case tuple := <-done:
		assert.Len(t, tuple, 2)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on push")
	}
}

func TestAlignmentCloseReleasesHeldFrames(t *testing.T) {
	var released int32
	b := NewAlignmentBuffer(4, 2)
	b.Push(trackedFrame([]byte{0}, &released), ts(1), 0)
	b.Push(trackedFrame([]byte{1}, &released), ts(2), 0)
	b.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&released))

	_, ok := b.PopAligned(10 * time.Millisecond)
	assert.False(t, ok)
}
