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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncFIFOBackpressure(t *testing.T) {
	f := NewAsyncFIFO(100)
	for i := 0; i < 150; i++ {
		f.Push(AsyncMetadata{Channel: i})
	}

	// the first 50 were dropped, the last 100 arrive in order
	assert.Equal(t, uint64(50), f.Dropped())
	for i := 50; i < 150; i++ {
		msg, ok := f.Pop(10 * time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, i, msg.Channel)
	}
	_, ok := f.Pop(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestAsyncFIFOPopTimesOut(t *testing.T) {
	f := NewAsyncFIFO(10)
	start := time.Now()
	_, ok := f.Pop(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAsyncFIFOPopUnblocksOnPush(t *testing.T) {
	f := NewAsyncFIFO(10)
	done := make(chan AsyncMetadata, 1)
	go func() {
		if msg, ok := f.Pop(2 * time.Second); ok {
			done <- msg
		}
	}()
	time.Sleep(20 * time.Millisecond)
	f.Push(AsyncMetadata{Channel: 7})

	select {
	case msg := <-done:
		assert.Equal(t, 7, msg.Channel)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on push")
	}
}
