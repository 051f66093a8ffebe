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
	"time"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/device/ifc"
	"github.com/sdrlab/go-usrp2/pkg/layers"
	"github.com/sdrlab/go-usrp2/pkg/log"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

// ChannelState is the bring-up state of a motherboard's channels.
type ChannelState int

const (
	StateCold ChannelState = iota
	StateProbed
	StateSeqReset
	StateReady
	StateDraining
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateProbed:
		return "probed"
	case StateSeqReset:
		return "seq-reset"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type StreamMode int

const (
	StreamModeStartContinuous StreamMode = iota
	StreamModeStopContinuous
	StreamModeNumSampsAndDone
	StreamModeNumSampsAndMore
)

// StreamCmd instructs a DSP when and how much to stream.
type StreamCmd struct {
	Mode      StreamMode
	NumSamps  uint32
	StreamNow bool
	TimeSpec  layers.TimeSpec
}

const (
	// probeTimeout bounds the send-frame acquire for the invalid-VRT
	// probe; the pool is full at bring-up so this never waits.
	probeTimeout = 100 * time.Millisecond
	// purgeTimeout is the short recv timeout used when consuming the
	// solicited and lingering frames during a sequence reset.
	purgeTimeout = 10 * time.Millisecond
)

// Mboard owns the per-motherboard channel state: bring-up, stream
// commands, flow-control registers and time control. Register access
// goes through the injected control-channel interface; every poke is
// mirrored into the shadow register state when one is attached.
type Mboard struct {
	Index int

	cfg       *config.Device
	iface     ifc.RegIface
	shadow    *RegState
	dspXports []transport.FrameTransport
	errXport  transport.FrameTransport

	state      ChannelState
	mimoMaster bool
	streaming  [NumRxDsps]bool
}

func NewMboard(
	index int,
	cfg *config.Device,
	iface ifc.RegIface,
	shadow *RegState,
	dspXports []transport.FrameTransport,
	errXport transport.FrameTransport,
) (*Mboard, error) {
	m := &Mboard{
		Index:     index,
		cfg:       cfg,
		iface:     iface,
		shadow:    shadow,
		dspXports: dspXports,
		errXport:  errXport,
		state:     StateCold,
	}

	switch cfg.MimoMode {
	case config.MimoModeMaster:
		m.mimoMaster = true
	case config.MimoModeSlave:
		m.mimoMaster = false
	default:
		status, err := iface.Peek32(RegMap[RegStatus])
		if err != nil {
			return nil, err
		}
		m.mimoMaster = status&FlagStatusMimoMaster != 0
	}
	log.Info("mboard%d is MIMO %s", index, map[bool]string{true: "master", false: "slave"}[m.mimoMaster])

	return m, nil
}

func (m *Mboard) State() ChannelState { return m.state }
func (m *Mboard) MimoMaster() bool    { return m.mimoMaster }
func (m *Mboard) Name() string        { return m.cfg.Name }

// RegWrite pokes a register through the control channel, mirroring
// the shadow state.
func (m *Mboard) RegWrite(addr, value uint32) error {
	return m.poke32(addr, value)
}

// RegRead returns the shadow value when present, falling back to a
// wire peek.
func (m *Mboard) RegRead(addr uint32) (uint32, error) {
	if m.shadow != nil {
		if value, err := m.shadow.GetReg(addr, m.cfg.Name); err == nil {
			return value, nil
		}
	}
	return m.iface.Peek32(addr)
}

func (m *Mboard) DspXports() []transport.FrameTransport { return m.dspXports }

func (m *Mboard) ErrXport() transport.FrameTransport { return m.errXport }

// PollErr drains one datagram from the error channel. The core only
// exposes this port as a transport to poll; fault decoding lives with
// the control collaborators. Returns a copy of the datagram.
func (m *Mboard) PollErr(timeout time.Duration) ([]byte, error) {
	if m.errXport == nil {
		return nil, nil
	}
	frame, err := m.errXport.AcquireRecvFrame(timeout)
	if err != nil || frame == nil {
		return nil, err
	}
	data := append([]byte{}, frame.Bytes()...)
	frame.Release()
	return data, nil
}

func (m *Mboard) poke32(addr, value uint32) error {
	if err := m.iface.Poke32(addr, value); err != nil {
		return err
	}
	if m.shadow != nil {
		if err := m.shadow.SetReg(addr, value, m.cfg.Name); err != nil {
			log.Warning("Shadow register write failed: addr: %x error: %s", addr, err)
		}
	}
	return nil
}

// InitXports sends the invalid-VRT probe datagram on every transport
// so the device latches the host's UDP source ports, then drains any
// junk frames. This must happen before anything else or async update
// packets trigger ICMP destination unreachable. COLD -> PROBED.
func (m *Mboard) InitXports() error {
	xports := append([]transport.FrameTransport{}, m.dspXports...)
	if m.errXport != nil {
		xports = append(xports, m.errXport)
	}
	for _, xport := range xports {
		frame, err := xport.AcquireSendFrame(probeTimeout)
		if err != nil {
			return err
		}
		if frame == nil {
			return ErrBringUp{Mboard: m.Index, What: "no send frame for source port probe"}
		}
		data := frame.Bytes()
		binary.BigEndian.PutUint32(data[0:4], 0) // don't care seq num
		binary.BigEndian.PutUint32(data[4:8], layers.InvalidVRTHeader)
		if err := frame.Commit(8); err != nil {
			return err
		}

		for {
			junk, err := xport.AcquireRecvFrame(purgeTimeout)
			if err != nil {
				return err
			}
			if junk == nil {
				break
			}
			junk.Release()
		}
	}
	m.state = StateProbed
	return nil
}

// SeqReset purges stale device state from a prior session: solicit a
// single packet, consume it plus one lingering frame, then write the
// sequence-clear register. PROBED -> SEQ_RESET.
func (m *Mboard) SeqReset(dsp int) error {
	cmd := StreamCmd{
		Mode:      StreamModeNumSampsAndDone,
		NumSamps:  1,
		StreamNow: true,
	}
	if err := m.IssueStreamCmd(cmd, dsp); err != nil {
		return err
	}

	xport := m.dspXports[dsp]
	for i := 0; i < 2; i++ { // lingering and expected
		frame, err := xport.AcquireRecvFrame(purgeTimeout)
		if err != nil {
			return err
		}
		if frame != nil {
			frame.Release()
		}
	}

	if err := m.poke32(RxCtrlClearReg(dsp), 1); err != nil {
		return err
	}
	m.state = StateSeqReset
	return nil
}

// MarkReady records that the scavengers are wired in. SEQ_RESET -> READY.
func (m *Mboard) MarkReady() {
	m.state = StateReady
}

// IssueStreamCmd encodes a stream command into the RX control
// registers of a DSP.
func (m *Mboard) IssueStreamCmd(cmd StreamCmd, dsp int) error {
	var reload, chain, useSamps bool
	switch cmd.Mode {
	case StreamModeStartContinuous:
		reload, chain = true, true
	case StreamModeStopContinuous:
	case StreamModeNumSampsAndDone:
		useSamps = true
	case StreamModeNumSampsAndMore:
		chain, useSamps = true, true
	}

	word := uint32(0)
	if cmd.StreamNow {
		word |= 1 << 31
	}
	if chain {
		word |= 1 << 30
	}
	if reload {
		word |= 1 << 29
	}
	if useSamps {
		word |= cmd.NumSamps & 0x1fffffff
	} else if cmd.Mode != StreamModeStopContinuous {
		word |= 1
	}

	tsi, tsf := cmd.TimeSpec.Ticks()
	if err := m.poke32(RxCtrlStreamCmdReg(dsp), word); err != nil {
		return err
	}
	if err := m.poke32(RxCtrlTimeSecsReg(dsp), tsi); err != nil {
		return err
	}
	if err := m.poke32(RxCtrlTimeTicksReg(dsp), uint32(tsf)); err != nil {
		return err
	}

	m.streaming[dsp] = cmd.Mode != StreamModeStopContinuous
	return nil
}

// SetupFlowControl programs the periodic and fifo-level TX
// flow-control updates. A zero option disables its register.
func (m *Mboard) SetupFlowControl(sendFrameSize int) error {
	if m.cfg.UpsPerSec > 0 {
		cyclesPerUp := uint32(m.cfg.MasterClockRate / m.cfg.UpsPerSec)
		if err := m.poke32(RegMap[RegTxCtrlCyclesPerUp], FlagTxCtrlUpEnb|cyclesPerUp); err != nil {
			return err
		}
	}
	if m.cfg.UpsPerFifo > 0 {
		packetsPerUp := uint32(float64(SramBytes) / m.cfg.UpsPerFifo / float64(sendFrameSize))
		if err := m.poke32(RegMap[RegTxCtrlPacketsPerUp], FlagTxCtrlUpEnb|packetsPerUp); err != nil {
			return err
		}
	}
	return nil
}

// TeardownFlowControl zeroes both update registers. Errors are
// swallowed: the socket may already be dead at teardown.
func (m *Mboard) TeardownFlowControl() {
	if err := m.poke32(RegMap[RegTxCtrlCyclesPerUp], 0); err != nil {
		log.Debug("Teardown poke failed: %s", err)
	}
	if err := m.poke32(RegMap[RegTxCtrlPacketsPerUp], 0); err != nil {
		log.Debug("Teardown poke failed: %s", err)
	}
	m.state = StateClosed
}

// SetTimeNow writes the device time registers immediately. A MIMO
// slave always takes time from the cable and rejects host time sets.
func (m *Mboard) SetTimeNow(t layers.TimeSpec) error {
	if !m.mimoMaster {
		return ErrMimoSlaveTime{Mboard: m.Index}
	}
	tsi, tsf := t.Ticks()
	if err := m.poke32(RegMap[RegTime64Ticks], uint32(tsf)); err != nil {
		return err
	}
	if err := m.poke32(RegMap[RegTime64Imm], 1); err != nil {
		return err
	}
	return m.poke32(RegMap[RegTime64Secs], tsi)
}

// HandleOverflow restarts a continuously streaming DSP after kernel
// drops.
func (m *Mboard) HandleOverflow(dsp int) {
	if !m.streaming[dsp] {
		return
	}
	cmd := StreamCmd{Mode: StreamModeStartContinuous, StreamNow: true}
	if err := m.IssueStreamCmd(cmd, dsp); err != nil {
		log.Error("Overflow restart failed: mboard: %d dsp: %d error: %s", m.Index, dsp, err)
	}
}

// BeginDrain marks the teardown transition. READY -> DRAINING.
func (m *Mboard) BeginDrain() {
	m.state = StateDraining
}
