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
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func init() {
	layers.LinkTypeMetadata[LinkTypeUSBPcap] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeUSBPcapLayer),
		Name:       "USBPcap",
		LayerType:  USBPcapLayerType,
	}
}

const (
	// USBPcapLayerNum identifies the layer
	USBPcapLayerNum = 2000
	// LinkTypeUSBPcap is the pcap link type assigned to USBPcap captures
	LinkTypeUSBPcap layers.LinkType = 249
	// USBPcapHeaderSize is the size of the fixed part of the packet header
	USBPcapHeaderSize = 27
	// USBPcapControlHeaderSize includes the stage byte of control transfers
	USBPcapControlHeaderSize = USBPcapHeaderSize + 1
)

// Transfer type codes as written by USBPcap
const (
	USBPcapTransferIsochronous uint8 = 0
	USBPcapTransferInterrupt   uint8 = 1
	USBPcapTransferControl     uint8 = 2
	USBPcapTransferBulk        uint8 = 3
)

// Control transfer stages
const (
	USBPcapControlStageSetup  uint8 = 0
	USBPcapControlStageData   uint8 = 1
	USBPcapControlStageStatus uint8 = 2
)

// USBPcapEndpointDirIn is the direction bit of the endpoint address
const USBPcapEndpointDirIn = 0x80

type USBPcapHeader struct {
	HeaderLen    uint16
	IRPID        uint64
	Status       uint32
	Function     uint16
	Info         uint8
	Bus          uint16
	Device       uint16
	Endpoint     uint8 // including the direction bit
	TransferType uint8
	DataLength   uint32
	Stage        uint8 // only meaningful for control transfers
}

type USBPcapLayer struct {
	layers.BaseLayer
	USBPcapHeader
}

var USBPcapLayerType = gopacket.RegisterLayerType(USBPcapLayerNum,
	gopacket.LayerTypeMetadata{Name: "USBPcapLayerType", Decoder: gopacket.DecodeFunc(decodeUSBPcapLayer)})

func (u *USBPcapLayer) LayerType() gopacket.LayerType {
	return USBPcapLayerType
}

func (u *USBPcapLayer) CanDecode() gopacket.LayerClass {
	return USBPcapLayerType
}

func (u *USBPcapLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// IsControl returns true if the header carries a control stage byte
func (u *USBPcapHeader) IsControl() bool {
	return u.TransferType == USBPcapTransferControl
}

// SerializeHeader writes the header to buf which must be at least
// USBPcapHeaderSize bytes long (USBPcapControlHeaderSize for control transfers)
func (u *USBPcapHeader) SerializeHeader(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], u.HeaderLen)
	binary.LittleEndian.PutUint64(buf[2:10], u.IRPID)
	binary.LittleEndian.PutUint32(buf[10:14], u.Status)
	binary.LittleEndian.PutUint16(buf[14:16], u.Function)
	buf[16] = u.Info
	binary.LittleEndian.PutUint16(buf[17:19], u.Bus)
	binary.LittleEndian.PutUint16(buf[19:21], u.Device)
	buf[21] = u.Endpoint
	buf[22] = u.TransferType
	binary.LittleEndian.PutUint32(buf[23:27], u.DataLength)
	if u.IsControl() {
		buf[27] = u.Stage
	}
}

// SerializeTo prepends the USBPcap header to whatever payload is already in b.
// With FixLengths HeaderLen and DataLength are computed.
func (u *USBPcapLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	size := USBPcapHeaderSize
	if u.IsControl() {
		size = USBPcapControlHeaderSize
	}
	if opts.FixLengths {
		u.HeaderLen = uint16(size)
		u.DataLength = uint32(len(b.Bytes()))
	}
	if int(u.HeaderLen) > size {
		size = int(u.HeaderLen)
	}
	bytes, err := b.PrependBytes(size)
	if err != nil {
		return err
	}
	for i := range bytes {
		bytes[i] = 0
	}
	u.SerializeHeader(bytes)
	return nil
}

// DecodeFromBytes decodes the USBPcap packet header. Everything after
// HeaderLen is the payload.
func (u *USBPcapLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < USBPcapHeaderSize {
		df.SetTruncated()
		return ErrTruncated{What: "USBPcap header", Want: USBPcapHeaderSize, Got: len(data)}
	}

	u.HeaderLen = binary.LittleEndian.Uint16(data[0:2])
	u.IRPID = binary.LittleEndian.Uint64(data[2:10])
	u.Status = binary.LittleEndian.Uint32(data[10:14])
	u.Function = binary.LittleEndian.Uint16(data[14:16])
	u.Info = data[16]
	u.Bus = binary.LittleEndian.Uint16(data[17:19])
	u.Device = binary.LittleEndian.Uint16(data[19:21])
	u.Endpoint = data[21]
	u.TransferType = data[22]
	u.DataLength = binary.LittleEndian.Uint32(data[23:27])
	u.Stage = 0

	minLen := USBPcapHeaderSize
	if u.IsControl() {
		minLen = USBPcapControlHeaderSize
	}
	if int(u.HeaderLen) < minLen {
		return ErrMalformed{What: fmt.Sprintf("USBPcap header length %d, must be at least %d", u.HeaderLen, minLen)}
	}
	if int(u.HeaderLen) > len(data) {
		df.SetTruncated()
		return ErrTruncated{What: "USBPcap header", Want: int(u.HeaderLen), Got: len(data)}
	}
	if u.IsControl() {
		u.Stage = data[USBPcapHeaderSize]
	}

	u.BaseLayer = layers.BaseLayer{
		Contents: data[:u.HeaderLen],
		Payload:  data[u.HeaderLen:],
	}
	return nil
}

func decodeUSBPcapLayer(data []byte, p gopacket.PacketBuilder) error {
	u := &USBPcapLayer{}
	err := u.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(u)
	return p.NextDecoder(u.NextLayerType())
}

// USBPcapFrame builds a complete frame out of the header and payload
func USBPcapFrame(hdr USBPcapHeader, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	err := gopacket.SerializeLayers(buf, opts, &USBPcapLayer{USBPcapHeader: hdr}, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
