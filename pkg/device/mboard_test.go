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
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

// fakeXport is an in-memory frame transport for bring-up tests.
type fakeXport struct {
	mu       sync.Mutex
	recvQ    []*transport.Frame
	sent     [][]byte
	released int32
}

var _ transport.FrameTransport = &fakeXport{}

func newFakeXport() *fakeXport { return &fakeXport{} }

func (x *fakeXport) queueStale(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i := 0; i < n; i++ {
		x.recvQ = append(x.recvQ, transport.NewFrame(
			[]byte{0xde, 0xad, 0xbe, 0xef},
			func(*transport.Frame) { atomic.AddInt32(&x.released, 1) },
			nil,
		))
	}
}

func (x *fakeXport) AcquireRecvFrame(timeout time.Duration) (*transport.Frame, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.recvQ) == 0 {
		return nil, nil
	}
	f := x.recvQ[0]
	x.recvQ = x.recvQ[1:]
	return f, nil
}

func (x *fakeXport) AcquireSendFrame(timeout time.Duration) (*transport.Frame, error) {
	return transport.NewFrame(make([]byte, 1472), nil,
		func(f *transport.Frame, length int) error {
			x.mu.Lock()
			x.sent = append(x.sent, append([]byte{}, f.Bytes()[:length]...))
			x.mu.Unlock()
			return nil
		},
	), nil
}

func (x *fakeXport) sentFrames() [][]byte {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sent
}

func (x *fakeXport) NumRecvFrames() int { return 32 }
func (x *fakeXport) RecvFrameSize() int { return 1472 }
func (x *fakeXport) SendFrameSize() int { return 1472 }
func (x *fakeXport) Interrupt()         {}
func (x *fakeXport) Close() error       { return nil }

func testDeviceConfig() *config.Device {
	return &config.Device{
		Name:            "usrp2-0",
		IP:              "192.168.10.2",
		MasterClockRate: 100e6,
		MimoMode:        config.MimoModeMaster,
		UpsPerSec:       20,
		UpsPerFifo:      8,
	}
}

func newTestMboard(t *testing.T, cfg *config.Device, iface *MemRegIface) (*Mboard, []*fakeXport) {
	t.Helper()
	xports := []*fakeXport{newFakeXport(), newFakeXport()}
	m, err := NewMboard(0, cfg, iface,
		nil, []transport.FrameTransport{xports[0], xports[1]}, newFakeXport())
	require.NoError(t, err)
	return m, xports
}

func TestInitXportsSendsProbe(t *testing.T) {
	iface := NewMemRegIface()
	m, xports := newTestMboard(t, testDeviceConfig(), iface)

	require.NoError(t, m.InitXports())
	assert.Equal(t, StateProbed, m.State())

	for _, x := range xports {
		frames := x.sentFrames()
		require.Len(t, frames, 1)
		require.Len(t, frames[0], 8)
		assert.Equal(t, uint32(layers.InvalidVRTHeader), binary.BigEndian.Uint32(frames[0][4:8]))
	}
}

func TestBringUpPurge(t *testing.T) {
	iface := NewMemRegIface()
	m, xports := newTestMboard(t, testDeviceConfig(), iface)

	// a prior session left 3 stale frames, the reset solicits 1 more
	xports[0].queueStale(3)
	require.NoError(t, m.InitXports())
	xports[0].queueStale(1)
	require.NoError(t, m.SeqReset(0))
	assert.Equal(t, StateSeqReset, m.State())

	// every queued frame was consumed and released
	assert.Equal(t, int32(4), atomic.LoadInt32(&xports[0].released))
	assert.Empty(t, xports[0].recvQ)

	// the sequence-clear register was written
	value, err := iface.Peek32(RxCtrlClearReg(0))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), value)

	// the solicitation was a single-shot stream command for one sample
	cmdWord, err := iface.Peek32(RxCtrlStreamCmdReg(0))
	require.NoError(t, err)
	assert.Equal(t, uint32(1)<<31|1, cmdWord)
}

func TestFlowControlSetup(t *testing.T) {
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, testDeviceConfig(), iface)

	require.NoError(t, m.SetupFlowControl(1472))

	cycles, _ := iface.Peek32(RegMap[RegTxCtrlCyclesPerUp])
	assert.Equal(t, FlagTxCtrlUpEnb|uint32(100e6/20), cycles)

	packets, _ := iface.Peek32(RegMap[RegTxCtrlPacketsPerUp])
	assert.Equal(t, FlagTxCtrlUpEnb|uint32(SramBytes/8/1472), packets)

	m.TeardownFlowControl()
	cycles, _ = iface.Peek32(RegMap[RegTxCtrlCyclesPerUp])
	packets, _ = iface.Peek32(RegMap[RegTxCtrlPacketsPerUp])
	assert.Zero(t, cycles)
	assert.Zero(t, packets)
	assert.Equal(t, StateClosed, m.State())
}

func TestFlowControlDisabled(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.UpsPerSec = 0
	cfg.UpsPerFifo = 0
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, cfg, iface)

	require.NoError(t, m.SetupFlowControl(1472))
	cycles, _ := iface.Peek32(RegMap[RegTxCtrlCyclesPerUp])
	packets, _ := iface.Peek32(RegMap[RegTxCtrlPacketsPerUp])
	assert.Zero(t, cycles)
	assert.Zero(t, packets)
}

func TestStreamCmdEncoding(t *testing.T) {
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, testDeviceConfig(), iface)

	cmd := StreamCmd{
		Mode:      StreamModeStartContinuous,
		StreamNow: true,
		TimeSpec:  layers.TimeSpec{FullSecs: 9, FracTicks: 1000},
	}
	require.NoError(t, m.IssueStreamCmd(cmd, 1))

	word, _ := iface.Peek32(RxCtrlStreamCmdReg(1))
	assert.Equal(t, uint32(1)<<31|uint32(1)<<30|uint32(1)<<29|1, word)

	secs, _ := iface.Peek32(RxCtrlTimeSecsReg(1))
	ticks, _ := iface.Peek32(RxCtrlTimeTicksReg(1))
	assert.Equal(t, uint32(9), secs)
	assert.Equal(t, uint32(1000), ticks)

	require.NoError(t, m.IssueStreamCmd(StreamCmd{Mode: StreamModeStopContinuous}, 1))
	word, _ = iface.Peek32(RxCtrlStreamCmdReg(1))
	assert.Zero(t, word)
}

func TestMimoSlaveRejectsTimeSet(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.MimoMode = config.MimoModeSlave
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, cfg, iface)

	err := m.SetTimeNow(layers.TimeSpec{FullSecs: 1})
	require.Error(t, err)
	assert.IsType(t, ErrMimoSlaveTime{}, err)
}

func TestMimoAutoReadsStatusRegister(t *testing.T) {
	cfg := testDeviceConfig()
	cfg.MimoMode = config.MimoModeAuto
	iface := NewMemRegIface()
	require.NoError(t, iface.Poke32(RegMap[RegStatus], FlagStatusMimoMaster))

	m, _ := newTestMboard(t, cfg, iface)
	assert.True(t, m.MimoMaster())
}

func TestSetTimeNowWritesRegisters(t *testing.T) {
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, testDeviceConfig(), iface)

	require.NoError(t, m.SetTimeNow(layers.TimeSpec{FullSecs: 100, FracTicks: 12345}))
	secs, _ := iface.Peek32(RegMap[RegTime64Secs])
	ticks, _ := iface.Peek32(RegMap[RegTime64Ticks])
	imm, _ := iface.Peek32(RegMap[RegTime64Imm])
	assert.Equal(t, uint32(100), secs)
	assert.Equal(t, uint32(12345), ticks)
	assert.Equal(t, uint32(1), imm)
}

func TestHandleOverflowRestartsContinuous(t *testing.T) {
	iface := NewMemRegIface()
	m, _ := newTestMboard(t, testDeviceConfig(), iface)

	// not streaming: nothing written
	m.HandleOverflow(0)
	word, _ := iface.Peek32(RxCtrlStreamCmdReg(0))
	assert.Zero(t, word)

	require.NoError(t, m.IssueStreamCmd(StreamCmd{Mode: StreamModeStartContinuous, StreamNow: true}, 0))
	require.NoError(t, iface.Poke32(RxCtrlStreamCmdReg(0), 0))

	m.HandleOverflow(0)
	word, _ = iface.Peek32(RxCtrlStreamCmdReg(0))
	assert.NotZero(t, word)
}
