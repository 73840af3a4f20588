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
	// CBWLayerNum identifies the layer
	CBWLayerNum = 2001
	// CSWLayerNum identifies the layer
	CSWLayerNum = 2002
)

// Bulk-Only Transport wrapper constants
const (
	CBWSignature   = 0x43425355 // "USBC"
	CBWSize        = 31
	CBWFlagDataIn  = 0x80
	CBWMaxCBLength = 16

	CSWSignature = 0x53425355 // "USBS"
	CSWSize      = 13
)

type CSWStatus uint8

const (
	CSWStatusPass       CSWStatus = 0
	CSWStatusFail       CSWStatus = 1
	CSWStatusPhaseError CSWStatus = 2
)

func (s CSWStatus) String() string {
	switch s {
	case CSWStatusPass:
		return "Pass"
	case CSWStatusFail:
		return "Fail"
	case CSWStatusPhaseError:
		return "Phase Error"
	}
	return "Reserved"
}

// CBW is the Command Block Wrapper sent by the host to start a command
type CBW struct {
	Signature          uint32
	Tag                uint32
	DataTransferLength uint32
	Flags              uint8 // bit 7 set means data goes device to host
	LUN                uint8
	CBLength           uint8
	CB                 [CBWMaxCBLength]byte // only CBLength bytes are meaningful
}

// NewCBW creates a signed CBW around the command block
func NewCBW(tag, length uint32, in bool, lun uint8, cb []byte) *CBW {
	cbw := &CBW{
		Signature:          CBWSignature,
		Tag:                tag,
		DataTransferLength: length,
		LUN:                lun,
		CBLength:           uint8(len(cb)),
	}
	if in {
		cbw.Flags = CBWFlagDataIn
	}
	copy(cbw.CB[:], cb)
	return cbw
}

// IsDataIn returns true if the data stage goes from the device to the host
func (c *CBW) IsDataIn() bool {
	return c.Flags&CBWFlagDataIn != 0
}

// Opcode returns the SCSI operation code, the first byte of the command block
func (c *CBW) Opcode() uint8 {
	return c.CB[0]
}

// Command returns the meaningful part of the command block
func (c *CBW) Command() []byte {
	n := int(c.CBLength)
	if n > CBWMaxCBLength {
		n = CBWMaxCBLength
	}
	return c.CB[:n]
}

func (c *CBW) Serialize(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], c.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.DataTransferLength)
	buf[12] = c.Flags
	buf[13] = c.LUN
	buf[14] = c.CBLength
	copy(buf[15:31], c.CB[:])
}

// Decode fills c from data. Fields are kept as captured, the only check is
// the signature.
func (c *CBW) Decode(data []byte) error {
	if len(data) < CBWSize {
		return ErrTruncated{What: "CBW", Want: CBWSize, Got: len(data)}
	}
	c.Signature = binary.LittleEndian.Uint32(data[0:4])
	if c.Signature != CBWSignature {
		return ErrSignature{What: "CBW", Want: CBWSignature, Got: c.Signature}
	}
	c.Tag = binary.LittleEndian.Uint32(data[4:8])
	c.DataTransferLength = binary.LittleEndian.Uint32(data[8:12])
	c.Flags = data[12]
	c.LUN = data[13]
	c.CBLength = data[14]
	copy(c.CB[:], data[15:31])
	return nil
}

func (c *CBW) Bytes() []byte {
	buf := make([]byte, CBWSize)
	c.Serialize(buf)
	return buf
}

// CSW is the Command Status Wrapper returned by the device
type CSW struct {
	Signature   uint32
	Tag         uint32
	DataResidue uint32
	Status      CSWStatus
}

// NewCSW creates a signed CSW
func NewCSW(tag, residue uint32, status CSWStatus) *CSW {
	return &CSW{
		Signature:   CSWSignature,
		Tag:         tag,
		DataResidue: residue,
		Status:      status,
	}
}

func (c *CSW) Serialize(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], c.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.DataResidue)
	buf[12] = uint8(c.Status)
}

func (c *CSW) Decode(data []byte) error {
	if len(data) < CSWSize {
		return ErrTruncated{What: "CSW", Want: CSWSize, Got: len(data)}
	}
	c.Signature = binary.LittleEndian.Uint32(data[0:4])
	if c.Signature != CSWSignature {
		return ErrSignature{What: "CSW", Want: CSWSignature, Got: c.Signature}
	}
	c.Tag = binary.LittleEndian.Uint32(data[4:8])
	c.DataResidue = binary.LittleEndian.Uint32(data[8:12])
	c.Status = CSWStatus(data[12])
	return nil
}

func (c *CSW) Bytes() []byte {
	buf := make([]byte, CSWSize)
	c.Serialize(buf)
	return buf
}

type CBWLayer struct {
	layers.BaseLayer
	CBW
}

var CBWLayerType = gopacket.RegisterLayerType(CBWLayerNum,
	gopacket.LayerTypeMetadata{Name: "CBWLayerType", Decoder: gopacket.DecodeFunc(DecodeCBWLayer)})

// LayerType returns the type of the CBW layer in the layer catalog
func (c *CBWLayer) LayerType() gopacket.LayerType {
	return CBWLayerType
}

// SerializeTo serializes the CBW into bytes and writes the bytes to the SerializeBuffer
func (c *CBWLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(CBWSize)
	if err != nil {
		return err
	}
	c.Serialize(bytes)
	return nil
}

func (c *CBWLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < CBWSize {
		df.SetTruncated()
	}
	if err := c.CBW.Decode(data); err != nil {
		return err
	}
	c.BaseLayer = layers.BaseLayer{
		Contents: data[:CBWSize],
		Payload:  data[CBWSize:],
	}
	return nil
}

func DecodeCBWLayer(data []byte, p gopacket.PacketBuilder) error {
	cbw := &CBWLayer{}
	err := cbw.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(cbw)
	return nil
}

type CSWLayer struct {
	layers.BaseLayer
	CSW
}

var CSWLayerType = gopacket.RegisterLayerType(CSWLayerNum,
	gopacket.LayerTypeMetadata{Name: "CSWLayerType", Decoder: gopacket.DecodeFunc(DecodeCSWLayer)})

// LayerType returns the type of the CSW layer in the layer catalog
func (c *CSWLayer) LayerType() gopacket.LayerType {
	return CSWLayerType
}

// SerializeTo serializes the CSW into bytes and writes the bytes to the SerializeBuffer
func (c *CSWLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(CSWSize)
	if err != nil {
		return err
	}
	c.Serialize(bytes)
	return nil
}

func (c *CSWLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < CSWSize {
		df.SetTruncated()
	}
	if err := c.CSW.Decode(data); err != nil {
		return err
	}
	c.BaseLayer = layers.BaseLayer{
		Contents: data[:CSWSize],
		Payload:  data[CSWSize:],
	}
	return nil
}

func DecodeCSWLayer(data []byte, p gopacket.PacketBuilder) error {
	csw := &CSWLayer{}
	err := csw.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(csw)
	return nil
}
