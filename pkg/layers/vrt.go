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

package layers

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// VRTLayerNum identifies the layer
	VRTLayerNum = 2001

	// MaxIfHdrWords32 is the worst-case IF header length:
	// header word, stream id, class id (2), tsi, tsf (2).
	MaxIfHdrWords32 = 7
	// CidSizeBytes is the size of the class id field. The class id is
	// never emitted on this wire.
	CidSizeBytes = 8
	// TlrSizeBytes is the size of the trailer word. The trailer is
	// mandatory on RX packets and omitted on TX packets.
	TlrSizeBytes = 4

	// AsyncSID marks TX async status reports on the data port.
	AsyncSID = 1

	// InvalidVRTHeader is the reserved sentinel used for the source
	// port probe datagram. The device treats it as a no-op.
	InvalidVRTHeader = 0
)

type PacketType uint8

const (
	PacketTypeData PacketType = iota
	PacketTypeIfContext
	PacketTypeExtContext
)

// word0 type tags
const (
	tagDataNoSID   = 0x0
	tagDataWithSID = 0x1
	tagIfContext   = 0x4
	tagExtContext  = 0x5
)

// IfPacketInfo is the decoded IF packet header.
type IfPacketInfo struct {
	PacketType PacketType
	HasSID     bool
	SID        uint32
	HasCID     bool
	HasTrailer bool
	// PacketCount is the 4-bit monotonic counter, modulo 16 per stream.
	PacketCount uint8
	HasTSI      bool
	HasTSF      bool
	TSI         uint32
	TSF         uint64
	// SOB/EOB are the burst flags, TX only.
	SOB bool
	EOB bool

	NumHeaderWords32  uint16
	NumPayloadWords32 uint16
	NumPacketWords32  uint16
}

// UnpackBE decodes a big-endian IF header from the beginning of data.
// info.NumPacketWords32 must be set by the caller to the total packet
// word count before the call. UnpackBE never allocates.
func UnpackBE(data []byte, info *IfPacketInfo) error {
	if len(data) < 4 || info.NumPacketWords32 < 1 {
		return ErrMalformedHeader{What: "packet shorter than one word"}
	}
	word0 := binary.BigEndian.Uint32(data[0:4])

	switch word0 >> 28 {
	case tagDataNoSID:
		info.PacketType = PacketTypeData
		info.HasSID = false
	case tagDataWithSID:
		info.PacketType = PacketTypeData
		info.HasSID = true
	case tagIfContext:
		info.PacketType = PacketTypeIfContext
		info.HasSID = true
	case tagExtContext:
		info.PacketType = PacketTypeExtContext
		info.HasSID = true
	default:
		return ErrMalformedHeader{What: "unknown packet type tag"}
	}

	info.HasCID = word0&(1<<27) != 0
	info.HasTrailer = word0&(1<<26) != 0
	info.SOB = word0&(1<<25) != 0
	info.EOB = word0&(1<<24) != 0
	info.HasTSI = (word0>>22)&0x3 != 0
	info.HasTSF = (word0>>20)&0x3 != 0
	info.PacketCount = uint8((word0 >> 16) & 0xf)

	sizeWords := uint16(word0 & 0xffff)
	if sizeWords > info.NumPacketWords32 {
		return ErrMalformedHeader{What: "advertised size exceeds packet length"}
	}
	info.NumPacketWords32 = sizeWords

	hdrWords := uint16(1)
	if info.HasSID {
		if err := checkHdrBound(data, hdrWords, info); err != nil {
			return err
		}
		info.SID = binary.BigEndian.Uint32(data[hdrWords*4:])
		hdrWords++
	}
	if info.HasCID {
		// class id is skipped, never interpreted
		hdrWords += 2
	}
	if info.HasTSI {
		if err := checkHdrBound(data, hdrWords, info); err != nil {
			return err
		}
		info.TSI = binary.BigEndian.Uint32(data[hdrWords*4:])
		hdrWords++
	}
	if info.HasTSF {
		if err := checkHdrBound(data, hdrWords+1, info); err != nil {
			return err
		}
		info.TSF = uint64(binary.BigEndian.Uint32(data[hdrWords*4:]))<<32 |
			uint64(binary.BigEndian.Uint32(data[(hdrWords+1)*4:]))
		hdrWords += 2
	}

	tlrWords := uint16(0)
	if info.HasTrailer {
		tlrWords = 1
	}
	if hdrWords+tlrWords > info.NumPacketWords32 {
		return ErrMalformedHeader{What: "header length exceeds packet length"}
	}

	info.NumHeaderWords32 = hdrWords
	info.NumPayloadWords32 = info.NumPacketWords32 - hdrWords - tlrWords
	return nil
}

func checkHdrBound(data []byte, word uint16, info *IfPacketInfo) error {
	if int(word+1)*4 > len(data) || word >= info.NumPacketWords32 {
		return ErrMalformedHeader{What: "header length exceeds packet length"}
	}
	return nil
}

// PackBE writes a big-endian IF header for info into hdr and returns
// the header length in words. The caller sets PacketType, SID flags,
// burst flags, timestamps, PacketCount and NumPayloadWords32; PackBE
// fills NumHeaderWords32 and NumPacketWords32. The class id is never
// emitted; hdr must hold MaxIfHdrWords32 words.
func PackBE(info *IfPacketInfo, hdr []byte) (int, error) {
	var tag uint32
	switch info.PacketType {
	case PacketTypeData:
		tag = tagDataNoSID
		if info.HasSID {
			tag = tagDataWithSID
		}
	case PacketTypeIfContext:
		tag = tagIfContext
	case PacketTypeExtContext:
		tag = tagExtContext
	default:
		return 0, ErrMalformedHeader{What: "unknown packet type tag"}
	}

	hdrWords := uint16(1)
	if info.HasSID {
		binary.BigEndian.PutUint32(hdr[hdrWords*4:], info.SID)
		hdrWords++
	}
	if info.HasTSI {
		binary.BigEndian.PutUint32(hdr[hdrWords*4:], info.TSI)
		hdrWords++
	}
	if info.HasTSF {
		binary.BigEndian.PutUint32(hdr[hdrWords*4:], uint32(info.TSF>>32))
		binary.BigEndian.PutUint32(hdr[(hdrWords+1)*4:], uint32(info.TSF))
		hdrWords += 2
	}

	tlrWords := uint16(0)
	if info.HasTrailer {
		tlrWords = 1
	}
	info.NumHeaderWords32 = hdrWords
	info.NumPacketWords32 = hdrWords + info.NumPayloadWords32 + tlrWords

	word0 := tag << 28
	if info.HasTrailer {
		word0 |= 1 << 26
	}
	if info.SOB {
		word0 |= 1 << 25
	}
	if info.EOB {
		word0 |= 1 << 24
	}
	if info.HasTSI {
		word0 |= 1 << 22
	}
	if info.HasTSF {
		word0 |= 1 << 20
	}
	word0 |= uint32(info.PacketCount&0xf) << 16
	word0 |= uint32(info.NumPacketWords32)
	binary.BigEndian.PutUint32(hdr[0:4], word0)

	return int(hdrWords), nil
}

// VRTLayer wraps an IF packet as a gopacket layer.
type VRTLayer struct {
	layers.BaseLayer
	IfPacketInfo
	// PayloadBytes is the packet payload without header and trailer.
	PayloadBytes []byte
	Trailer      uint32
}

var VRTLayerType = gopacket.RegisterLayerType(VRTLayerNum,
	gopacket.LayerTypeMetadata{Name: "VRTLayerType", Decoder: gopacket.DecodeFunc(DecodeVRTLayer)})

// LayerType returns the type of the VRT layer in the layer catalog
func (v *VRTLayer) LayerType() gopacket.LayerType {
	return VRTLayerType
}

// DecodeFromBytes attempts to decode the byte slice as an IF packet
func (v *VRTLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 4 || len(data)%4 != 0 {
		df.SetTruncated()
		return ErrMalformedHeader{What: "packet length is not a whole word count"}
	}
	v.IfPacketInfo = IfPacketInfo{NumPacketWords32: uint16(len(data) / 4)}
	if err := UnpackBE(data, &v.IfPacketInfo); err != nil {
		return err
	}

	hdrBytes := int(v.NumHeaderWords32) * 4
	payloadEnd := hdrBytes + int(v.NumPayloadWords32)*4
	v.BaseLayer = layers.BaseLayer{
		Contents: data[:hdrBytes],
		Payload:  data[hdrBytes:payloadEnd],
	}
	v.PayloadBytes = data[hdrBytes:payloadEnd]
	if v.HasTrailer {
		v.Trailer = binary.BigEndian.Uint32(data[payloadEnd:])
	}
	return nil
}

// SerializeTo serializes the IF packet into bytes and writes the bytes
// to the SerializeBuffer
func (v *VRTLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	v.NumPayloadWords32 = uint16(len(v.PayloadBytes) / 4)
	hdr := make([]byte, MaxIfHdrWords32*4)
	hdrWords, err := PackBE(&v.IfPacketInfo, hdr)
	if err != nil {
		return err
	}

	bytes, err := b.AppendBytes(hdrWords * 4)
	if err != nil {
		return err
	}
	copy(bytes, hdr[:hdrWords*4])

	bytes, err = b.AppendBytes(len(v.PayloadBytes))
	if err != nil {
		return err
	}
	copy(bytes, v.PayloadBytes)

	if v.HasTrailer {
		bytes, err = b.AppendBytes(4)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(bytes, v.Trailer)
	}
	return nil
}

func DecodeVRTLayer(data []byte, p gopacket.PacketBuilder) error {
	v := &VRTLayer{}
	err := v.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(v)
	return nil
}
