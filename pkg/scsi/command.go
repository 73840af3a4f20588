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

package scsi

import (
	"fmt"

	"github.com/c1728p9/usbtrace/pkg/layers"
)

// SCSI operation codes with a typed decoding
const (
	OpTestUnitReady uint8 = 0x00
	OpRead10        uint8 = 0x28
	OpWrite10       uint8 = 0x2A
)

type CommandKind int

const (
	KindOpaque CommandKind = iota
	KindTestUnitReady
	KindRead10
	KindWrite10
)

func (k CommandKind) String() string {
	switch k {
	case KindTestUnitReady:
		return "TestUnitReady"
	case KindRead10:
		return "Read10"
	case KindWrite10:
		return "Write10"
	}
	return "Unknown"
}

// Command is the typed decoding of a command block. The set of
// implementations is closed: TestUnitReady, Read10, Write10 and Opaque.
type Command interface {
	Kind() CommandKind
	Op() uint8
	command()
}

// BlockCommand is implemented by commands that address a range of blocks
type BlockCommand interface {
	Command
	LBA() uint32
	Blocks() uint16
}

type TestUnitReady struct {
	CDB layers.CDB6
}

func (c *TestUnitReady) Kind() CommandKind { return KindTestUnitReady }
func (c *TestUnitReady) Op() uint8         { return c.CDB.Op }
func (c *TestUnitReady) command()          {}

type Read10 struct {
	CDB layers.CDB10
}

func (c *Read10) Kind() CommandKind { return KindRead10 }
func (c *Read10) Op() uint8         { return c.CDB.Op }
func (c *Read10) LBA() uint32       { return c.CDB.LBA }
func (c *Read10) Blocks() uint16    { return c.CDB.Length }
func (c *Read10) command()          {}

type Write10 struct {
	CDB layers.CDB10
}

func (c *Write10) Kind() CommandKind { return KindWrite10 }
func (c *Write10) Op() uint8         { return c.CDB.Op }
func (c *Write10) LBA() uint32       { return c.CDB.LBA }
func (c *Write10) Blocks() uint16    { return c.CDB.Length }
func (c *Write10) command()          {}

// Opaque stands for every opcode without a typed decoding
type Opaque struct {
	Opcode uint8
}

func (c *Opaque) Kind() CommandKind { return KindOpaque }
func (c *Opaque) Op() uint8         { return c.Opcode }
func (c *Opaque) command()          {}

type commandDecoder func(cb []byte) (Command, error)

var commandDecoders = map[uint8]commandDecoder{
	OpTestUnitReady: decodeTestUnitReady,
	OpRead10:        decodeRead10,
	OpWrite10:       decodeWrite10,
}

func decodeTestUnitReady(cb []byte) (Command, error) {
	c := &TestUnitReady{}
	if err := c.CDB.Decode(cb); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeRead10(cb []byte) (Command, error) {
	c := &Read10{}
	if err := c.CDB.Decode(cb); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeWrite10(cb []byte) (Command, error) {
	c := &Write10{}
	if err := c.CDB.Decode(cb); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeCommand dispatches on the first byte of the command block. Unknown
// opcodes, and known ones whose block is too short, come back as Opaque.
func DecodeCommand(cb []byte) Command {
	if len(cb) == 0 {
		return &Opaque{}
	}
	decode, ok := commandDecoders[cb[0]]
	if !ok {
		return &Opaque{Opcode: cb[0]}
	}
	cmd, err := decode(cb)
	if err != nil {
		return &Opaque{Opcode: cb[0]}
	}
	return cmd
}

// Describe renders the command specific fields
func Describe(c Command) string {
	switch cmd := c.(type) {
	case *TestUnitReady:
		return fmt.Sprintf("control=0x%x", cmd.CDB.Control)
	case *Read10:
		return fmt.Sprintf("lba=0x%x blocks=%d", cmd.LBA(), cmd.Blocks())
	case *Write10:
		return fmt.Sprintf("lba=0x%x blocks=%d", cmd.LBA(), cmd.Blocks())
	case *Opaque:
		return ""
	}
	return ""
}
