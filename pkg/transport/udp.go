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
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/sdrlab/go-usrp2/pkg/log"
)

// UDPTransport is a pooled frame transport over a connected UDP
// socket. Frames are preallocated; acquiring borrows from the free
// list and releasing returns to it, so the steady state is zero-copy
// and allocation free.
type UDPTransport struct {
	conn *net.UDPConn

	recvFree chan *Frame
	sendFree chan *Frame

	numRecvFrames int
	recvFrameSize int
	sendFrameSize int

	interrupted atomic.Bool
	closed      atomic.Bool
}

var _ FrameTransport = &UDPTransport{}

// NewUDPTransport connects to addr:port and builds the frame pools.
func NewUDPTransport(addr string, port int, recvFrameSize, sendFrameSize, numRecvFrames, numSendFrames int) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	log.Debug("Transport connected: %s local: %s", raddr, conn.LocalAddr())

	t := &UDPTransport{
		conn:          conn,
		recvFree:      make(chan *Frame, numRecvFrames),
		sendFree:      make(chan *Frame, numSendFrames),
		numRecvFrames: numRecvFrames,
		recvFrameSize: recvFrameSize,
		sendFrameSize: sendFrameSize,
	}
	for i := 0; i < numRecvFrames; i++ {
		t.recvFree <- NewFrame(make([]byte, recvFrameSize), t.releaseRecv, nil)
	}
	for i := 0; i < numSendFrames; i++ {
		t.sendFree <- NewFrame(make([]byte, sendFrameSize), t.releaseSend, t.commitSend)
	}
	return t, nil
}

func (t *UDPTransport) releaseRecv(f *Frame) {
	f.recycle()
	t.recvFree <- f
}

func (t *UDPTransport) releaseSend(f *Frame) {
	f.recycle()
	t.sendFree <- f
}

func (t *UDPTransport) commitSend(f *Frame, length int) error {
	_, err := t.conn.Write(f.buf[:length])
	f.recycle()
	t.sendFree <- f
	return err
}

// AcquireRecvFrame borrows a frame and reads one datagram into it.
// Returns (nil, nil) when no datagram arrives within timeout.
func (t *UDPTransport) AcquireRecvFrame(timeout time.Duration) (*Frame, error) {
	var frame *Frame
	select {
	case frame = <-t.recvFree:
	case <-time.After(timeout):
		return nil, nil
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		frame.Release()
		return nil, err
	}
	length, err := t.conn.Read(frame.buf)
	if err != nil {
		frame.Release()
		if t.interrupted.Load() || t.closed.Load() {
			return nil, nil
		}
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	frame.Resize(length)
	return frame, nil
}

// AcquireSendFrame borrows a frame from the send pool.
func (t *UDPTransport) AcquireSendFrame(timeout time.Duration) (*Frame, error) {
	select {
	case frame := <-t.sendFree:
		return frame, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (t *UDPTransport) NumRecvFrames() int { return t.numRecvFrames }
func (t *UDPTransport) RecvFrameSize() int { return t.recvFrameSize }
func (t *UDPTransport) SendFrameSize() int { return t.sendFrameSize }

// Interrupt unblocks a pending recv by expiring the read deadline.
func (t *UDPTransport) Interrupt() {
	t.interrupted.Store(true)
	t.conn.SetReadDeadline(time.Now())
}

func (t *UDPTransport) Close() error {
	t.closed.Store(true)
	err := t.conn.Close()
	if err != nil && !os.IsTimeout(err) {
		return err
	}
	return nil
}
