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
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	pkglayers "github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

// Writer stores transfers as a single section pcapng file with one USBPcap interface
type Writer struct {
	ng *pcapgo.NgWriter
}

func NewWriter(w io.Writer) (*Writer, error) {
	intf := pcapgo.DefaultNgInterface
	intf.Name = "USBPcap"
	intf.LinkType = pkglayers.LinkTypeUSBPcap
	ng, err := pcapgo.NewNgWriterInterface(w, intf, pcapgo.DefaultNgWriterOptions)
	if err != nil {
		return nil, err
	}
	return &Writer{ng: ng}, nil
}

func (w *Writer) WriteTransfer(t *usb.Transfer) error {
	data, err := usb.EncodeUSBPcap(t)
	if err != nil {
		return err
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Unix(0, 0)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	return w.ng.WritePacket(ci, data)
}

func (w *Writer) Flush() error {
	return w.ng.Flush()
}

// Export copies every transfer of src into w
func Export(w io.Writer, src usb.TransferSource) (int, error) {
	writer, err := NewWriter(w)
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		t, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		if err := writer.WriteTransfer(t); err != nil {
			return count, err
		}
		count++
	}
	return count, writer.Flush()
}
