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
	"encoding/binary"
	"math"

	"github.com/sdrlab/go-usrp2/pkg/layers"
)

// IOType is the sample encoding of the user buffers.
type IOType int

const (
	// IOTypeComplexInt16 is interleaved 16-bit I/Q, little-endian.
	IOTypeComplexInt16 IOType = iota
	// IOTypeComplexFloat32 is interleaved little-endian float32 I/Q;
	// a wire value of 32767 maps to 1.0.
	IOTypeComplexFloat32
)

const (
	// OTWSampleSize is the size of one over-the-wire sample: one
	// 16-bit I and one 16-bit Q packed into a big-endian word.
	OTWSampleSize = 4

	floatScale = 32767.0
)

// SampleSize returns the size of one user sample in bytes.
func (t IOType) SampleSize() int {
	switch t {
	case IOTypeComplexFloat32:
		return 8
	default:
		return OTWSampleSize
	}
}

// MaxSampsPerPacket is the payload capacity of one frame given the
// worst-case header, the trailer, and the never-emitted class id.
func MaxSampsPerPacket(frameSize int) int {
	hdrSize := layers.MaxIfHdrWords32*4 + layers.TlrSizeBytes - layers.CidSizeBytes
	return (frameSize - hdrSize) / OTWSampleSize
}

// otwToUser converts numSamps over-the-wire samples into the user
// buffer encoded as ioType.
func otwToUser(otw []byte, user []byte, numSamps int, ioType IOType) {
	switch ioType {
	case IOTypeComplexFloat32:
		for i := 0; i < numSamps; i++ {
			re := int16(binary.BigEndian.Uint16(otw[i*4:]))
			im := int16(binary.BigEndian.Uint16(otw[i*4+2:]))
			binary.LittleEndian.PutUint32(user[i*8:], math.Float32bits(float32(re)/floatScale))
			binary.LittleEndian.PutUint32(user[i*8+4:], math.Float32bits(float32(im)/floatScale))
		}
	default:
		for i := 0; i < numSamps; i++ {
			binary.LittleEndian.PutUint16(user[i*4:], binary.BigEndian.Uint16(otw[i*4:]))
			binary.LittleEndian.PutUint16(user[i*4+2:], binary.BigEndian.Uint16(otw[i*4+2:]))
		}
	}
}

// userToOTW converts numSamps user samples into over-the-wire form.
func userToOTW(user []byte, otw []byte, numSamps int, ioType IOType) {
	switch ioType {
	case IOTypeComplexFloat32:
		for i := 0; i < numSamps; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(user[i*8:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(user[i*8+4:]))
			binary.BigEndian.PutUint16(otw[i*4:], uint16(int16(clampFloat(re)*floatScale)))
			binary.BigEndian.PutUint16(otw[i*4+2:], uint16(int16(clampFloat(im)*floatScale)))
		}
	default:
		for i := 0; i < numSamps; i++ {
			binary.BigEndian.PutUint16(otw[i*4:], binary.LittleEndian.Uint16(user[i*4:]))
			binary.BigEndian.PutUint16(otw[i*4+2:], binary.LittleEndian.Uint16(user[i*4+2:]))
		}
	}
}

func clampFloat(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
