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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/stream"
)

func testConfig() *config.Config {
	return &config.Config{
		IP:      config.DefaultIP,
		Devices: []*config.Device{testDeviceConfig()},
	}
}

func TestDeviceBringUpAndClose(t *testing.T) {
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, testDeviceConfig(), iface)

	d := NewDevice(testConfig(), []*Mboard{m})
	require.NoError(t, d.InitIO())
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, 2, d.NumChannels())

	// flow control was programmed at bring-up
	cycles, _ := iface.Peek32(RegMap[RegTxCtrlCyclesPerUp])
	assert.NotZero(t, cycles)

	// no data queued: recv drains to timeout
	md := &stream.RecvMetadata{}
	out := [][]byte{make([]byte, 16*4), make([]byte, 16*4)}
	got := d.Recv(out, 16, md, stream.IOTypeComplexInt16, stream.RecvModeFull, 20*time.Millisecond)
	assert.Zero(t, got)
	assert.Equal(t, stream.RxErrorTimeout, md.ErrorCode)

	_, ok := d.RecvAsyncMsg(10 * time.Millisecond)
	assert.False(t, ok)

	d.Close()
	assert.Equal(t, StateClosed, m.State())
	cycles, _ = iface.Peek32(RegMap[RegTxCtrlCyclesPerUp])
	assert.Zero(t, cycles)
}

func TestDeviceSendAfterBringUp(t *testing.T) {
	iface := NewMemRegIface()
	m, xports := newTestMboard(t, testDeviceConfig(), iface)

	d := NewDevice(testConfig(), []*Mboard{m})
	require.NoError(t, d.InitIO())
	defer d.Close()

	md := &stream.SendMetadata{StartOfBurst: true, EndOfBurst: true}
	buf := make([]byte, 64*4)
	sent, err := d.Send(
		[][]byte{buf, buf}, 64, md,
		stream.IOTypeComplexInt16, stream.SendModeFull, time.Second,
	)
	require.NoError(t, err)
	assert.Equal(t, 64, sent)

	for _, x := range xports {
		// probe datagram plus one data packet
		assert.Len(t, x.sentFrames(), 2)
	}
}

func TestDeviceMaxSampsPerPacket(t *testing.T) {
	m, _ := newTestMboard(t, testDeviceConfig(), NewMemRegIface())
	d := NewDevice(testConfig(), []*Mboard{m})
	require.NoError(t, d.InitIO())
	defer d.Close()

	// (1472 - (28 + 4 - 8)) / 4
	assert.Equal(t, 362, d.MaxRecvSampsPerPacket())
	assert.Equal(t, 362, d.MaxSendSampsPerPacket())
}
