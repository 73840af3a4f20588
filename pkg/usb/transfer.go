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

package usb

import (
	"fmt"
	"io"
	"time"
)

type TransferType uint8

const (
	TransferControl TransferType = iota
	TransferInterrupt
	TransferBulk
	TransferIsochronous
)

func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "Control"
	case TransferInterrupt:
		return "Interrupt"
	case TransferBulk:
		return "Bulk"
	case TransferIsochronous:
		return "Isochronous"
	}
	return fmt.Sprintf("TransferType(%d)", uint8(t))
}

// Direction is the stage of a control transfer or the data direction of any
// other transfer
type Direction uint8

const (
	DirectionSetup Direction = iota
	DirectionData
	DirectionStatus
	DirectionIn
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionSetup:
		return "Setup"
	case DirectionData:
		return "Data"
	case DirectionStatus:
		return "Status"
	case DirectionIn:
		return "In"
	case DirectionOut:
		return "Out"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// Transfer is one captured USB packet. Transfers are never modified after
// they are handed out.
type Transfer struct {
	ID        int       // packet index within the capture section, starting at 1
	Timestamp time.Time // zero if the container did not record one
	Bus       uint16
	Device    uint16
	Endpoint  uint8 // without the direction bit
	Type      TransferType
	Direction Direction
	Payload   []byte
}

func (t *Transfer) String() string {
	return fmt.Sprintf("<USB #%d %d.%d.%d %s %s len=%d>",
		t.ID, t.Bus, t.Device, t.Endpoint, t.Type, t.Direction, len(t.Payload))
}

// TransferSource is a pull based sequence of transfers. Next returns io.EOF
// once the sequence is exhausted.
type TransferSource interface {
	Next() (*Transfer, error)
}

// SliceSource serves transfers from memory
type SliceSource struct {
	transfers []*Transfer
	pos       int
}

func NewSliceSource(transfers []*Transfer) *SliceSource {
	return &SliceSource{transfers: transfers}
}

func (s *SliceSource) Next() (*Transfer, error) {
	if s.pos >= len(s.transfers) {
		return nil, io.EOF
	}
	t := s.transfers[s.pos]
	s.pos++
	return t, nil
}

// ReadAll drains the source
func ReadAll(src TransferSource) ([]*Transfer, error) {
	var result []*Transfer
	for {
		t, err := src.Next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result = append(result, t)
	}
}
