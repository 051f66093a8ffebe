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

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameReleaseRunsHookOnce(t *testing.T) {
	released := 0
	f := NewFrame(make([]byte, 8), func(*Frame) { released++ }, nil)
	f.Release()
	assert.Equal(t, 1, released)
}

func TestFrameDoubleReleasePanics(t *testing.T) {
	f := NewFrame(make([]byte, 8), func(*Frame) {}, nil)
	f.Release()
	assert.Panics(t, func() { f.Release() })
}

func TestFrameReleaseAfterCommitPanics(t *testing.T) {
	f := NewFrame(make([]byte, 8), nil, func(*Frame, int) error { return nil })
	require.NoError(t, f.Commit(4))
	assert.Panics(t, func() { f.Release() })
}

func TestFrameResizeNarrowsWindow(t *testing.T) {
	f := NewFrame(make([]byte, 16), nil, nil)
	f.Resize(4)
	assert.Len(t, f.Bytes(), 4)
	assert.Equal(t, 16, f.Capacity())
}
