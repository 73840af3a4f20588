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

package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	pkglayers "github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

const (
	// Block types of the pcapng container
	BlockSectionHeader        = 0x0A0D0D0A
	BlockInterfaceDescription = 0x00000001
	BlockSimplePacket         = 0x00000003
	BlockEnhancedPacket       = 0x00000006
)

// unknownInterfaceFormat is the message pcapgo uses for a packet on an undescribed interface
const unknownInterfaceFormat = "Interface id %d not present in section (have only %d interfaces)"

// LinkDecoders maps link types to the decoder registered for them
var LinkDecoders = map[layers.LinkType]usb.DecodeFunc{
	pkglayers.LinkTypeUSBPcap: usb.DecodeUSBPcap,
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader demultiplexes a capture file into USB transfers. Packets are decoded
// lazily, one per call to Next.
type Reader struct {
	file   io.Closer
	ng     *pcapgo.NgReader
	source packetReader
	logger *log.Logger

	decoders   []usb.DecodeFunc // indexed by interface id, nil when unsupported
	index      int
	newSection bool
}

var _ usb.TransferSource = &Reader{}

// NewReader detects the container format (pcapng or classic pcap) and
// prepares to read packets from r
func NewReader(r io.Reader, logger *log.Logger) (*Reader, error) {
	if logger == nil {
		logger = log.Default()
	}
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, ErrContainer{Err: err}
	}

	reader := &Reader{
		logger: logger,
		index:  1,
	}

	if binary.LittleEndian.Uint32(magic) == BlockSectionHeader {
		options := pcapgo.NgReaderOptions{
			WantMixedLinkType: true,
			SectionEndCallback: func(_ []pcapgo.NgInterface, _ pcapgo.NgSectionInfo) {
				reader.newSection = true
			},
		}
		ng, err := pcapgo.NewNgReader(br, options)
		if err != nil {
			return nil, ErrContainer{Err: err}
		}
		reader.ng = ng
		reader.source = ng
		logger.Debug("Reading pcapng capture")
		return reader, nil
	}

	legacy, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, ErrContainer{Err: err}
	}
	reader.source = legacy
	reader.registerInterface(0, legacy.LinkType())
	logger.Debug("Reading pcap capture with link type %s", legacy.LinkType())
	return reader, nil
}

// Open opens a capture file. The caller must Close the reader.
func Open(path string, logger *log.Logger) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(file, logger)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.file = file
	return reader, nil
}

// WithFile opens the capture, calls fn and closes the file on every path out
func WithFile(path string, logger *log.Logger, fn func(r *Reader) error) error {
	reader, err := Open(path, logger)
	if err != nil {
		return err
	}
	defer reader.Close()
	return fn(reader)
}

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *Reader) registerInterface(id int, linkType layers.LinkType) {
	decoder, ok := LinkDecoders[linkType]
	if !ok {
		r.logger.Warning("Skipping interface %d: no decoder for link type %d", id, int(linkType))
	} else {
		r.logger.Debug("Interface %d registered with link type %s", id, linkType)
	}
	r.decoders = append(r.decoders, decoder)
}

// syncInterfaces registers the interfaces the container described since the last packet
func (r *Reader) syncInterfaces() error {
	if r.ng == nil {
		return nil
	}
	if r.newSection {
		r.logger.Debug("New capture section")
		r.decoders = r.decoders[:0]
		r.index = 1
		r.newSection = false
	}
	for i := len(r.decoders); i < r.ng.NInterfaces(); i++ {
		intf, err := r.ng.Interface(i)
		if err != nil {
			return ErrContainer{Err: err}
		}
		r.registerInterface(i, intf.LinkType)
	}
	return nil
}

// Next returns the next transfer, io.EOF at the end of the capture
func (r *Reader) Next() (*usb.Transfer, error) {
	for {
		data, ci, err := r.source.ReadPacketData()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, r.containerError(err)
		}
		if err := r.syncInterfaces(); err != nil {
			return nil, err
		}
		// pcapgo reports Simple Packet Blocks with a zero timestamp
		if r.ng != nil && ci.Timestamp.IsZero() {
			r.logger.Debug("Skipping simple packet block of %d bytes", len(data))
			continue
		}
		return r.decode(data, ci)
	}
}

func (r *Reader) decode(data []byte, ci gopacket.CaptureInfo) (*usb.Transfer, error) {
	id := ci.InterfaceIndex
	if id < 0 || id >= len(r.decoders) {
		return nil, ErrUnknownInterface{Interface: id, Count: len(r.decoders)}
	}
	decode := r.decoders[id]
	if decode == nil {
		linkType := layers.LinkTypeNull
		if r.ng != nil {
			if intf, err := r.ng.Interface(id); err == nil {
				linkType = intf.LinkType
			}
		} else if legacy, ok := r.source.(*pcapgo.Reader); ok {
			linkType = legacy.LinkType()
		}
		return nil, ErrUnsupportedLinkType{Interface: id, LinkType: linkType}
	}

	xfer, err := decode(data, r.index)
	if err != nil {
		return nil, err
	}
	xfer.Timestamp = ci.Timestamp
	r.index++
	return xfer, nil
}

// containerError translates the out of range interface fault of pcapgo
func (r *Reader) containerError(err error) error {
	var id, count int
	if _, scanErr := fmt.Sscanf(err.Error(), unknownInterfaceFormat, &id, &count); scanErr == nil {
		return ErrUnknownInterface{Interface: id, Count: count}
	}
	return ErrContainer{Err: err}
}
