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
)

const (
	CDB6Size  = 6
	CDB10Size = 10
)

// CDB6 is the legacy 6 byte command descriptor block with a 21 bit LBA split
// over the low bits of byte 1 and a 16 bit word. The word is read little
// endian, the way the capture tooling for these probes always has.
type CDB6 struct {
	Op      uint8
	Misc    uint8  // 3 bits
	LBA     uint32 // 21 bits
	Length  uint8
	Control uint8
}

func (c *CDB6) Decode(cb []byte) error {
	if len(cb) < CDB6Size {
		return ErrTruncated{What: "CDB6", Want: CDB6Size, Got: len(cb)}
	}
	c.Op = cb[0]
	c.Misc = (cb[1] >> 5) & 0x7
	c.LBA = uint32(cb[1]&0x1f)<<16 | uint32(binary.LittleEndian.Uint16(cb[2:4]))
	c.Length = cb[4]
	c.Control = cb[5]
	return nil
}

func (c *CDB6) Serialize(buf []byte) {
	buf[0] = c.Op
	buf[1] = (c.Misc&0x7)<<5 | uint8(c.LBA>>16)&0x1f
	binary.LittleEndian.PutUint16(buf[2:4], uint16(c.LBA))
	buf[4] = c.Length
	buf[5] = c.Control
}

func (c *CDB6) Bytes() []byte {
	buf := make([]byte, CDB6Size)
	c.Serialize(buf)
	return buf
}

// CDB10 is the 10 byte command descriptor block, multi byte fields are big endian
type CDB10 struct {
	Op      uint8
	Misc    uint8 // 3 bits
	Service uint8 // 5 bits
	LBA     uint32
	Misc2   uint8
	Length  uint16
	Control uint8
}

func (c *CDB10) Decode(cb []byte) error {
	if len(cb) < CDB10Size {
		return ErrTruncated{What: "CDB10", Want: CDB10Size, Got: len(cb)}
	}
	c.Op = cb[0]
	c.Misc = (cb[1] >> 5) & 0x7
	c.Service = cb[1] & 0x1f
	c.LBA = binary.BigEndian.Uint32(cb[2:6])
	c.Misc2 = cb[6]
	c.Length = binary.BigEndian.Uint16(cb[7:9])
	c.Control = cb[9]
	return nil
}

func (c *CDB10) Serialize(buf []byte) {
	buf[0] = c.Op
	buf[1] = (c.Misc&0x7)<<5 | c.Service&0x1f
	binary.BigEndian.PutUint32(buf[2:6], c.LBA)
	buf[6] = c.Misc2
	binary.BigEndian.PutUint16(buf[7:9], c.Length)
	buf[9] = c.Control
}

func (c *CDB10) Bytes() []byte {
	buf := make([]byte, CDB10Size)
	c.Serialize(buf)
	return buf
}
