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

	"github.com/google/gopacket"

	"github.com/c1728p9/usbtrace/pkg/layers"
)

// DecodeFunc turns one captured frame into a transfer
type DecodeFunc func(data []byte, id int) (*Transfer, error)

// ErrDecode returned when a captured frame can not be turned into a transfer
type ErrDecode struct {
	ID  int
	Err error
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("Error while decoding packet %d: %s", e.ID, e.Err)
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}

var transferTypes = map[uint8]TransferType{
	layers.USBPcapTransferIsochronous: TransferIsochronous,
	layers.USBPcapTransferInterrupt:   TransferInterrupt,
	layers.USBPcapTransferControl:     TransferControl,
	layers.USBPcapTransferBulk:        TransferBulk,
}

var controlStages = map[uint8]Direction{
	layers.USBPcapControlStageSetup:  DirectionSetup,
	layers.USBPcapControlStageData:   DirectionData,
	layers.USBPcapControlStageStatus: DirectionStatus,
}

// DecodeUSBPcap decodes a frame captured with link type 249
func DecodeUSBPcap(data []byte, id int) (*Transfer, error) {
	u := &layers.USBPcapLayer{}
	if err := u.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, ErrDecode{ID: id, Err: err}
	}

	ttype, ok := transferTypes[u.TransferType]
	if !ok {
		return nil, ErrDecode{ID: id, Err: layers.ErrMalformed{What: fmt.Sprintf("USBPcap transfer type %d", u.TransferType)}}
	}

	var dir Direction
	if ttype == TransferControl {
		dir, ok = controlStages[u.Stage]
		if !ok {
			return nil, ErrDecode{ID: id, Err: layers.ErrMalformed{What: fmt.Sprintf("USBPcap control stage %d", u.Stage)}}
		}
	} else if u.Endpoint&layers.USBPcapEndpointDirIn != 0 {
		dir = DirectionIn
	} else {
		dir = DirectionOut
	}

	return &Transfer{
		ID:        id,
		Bus:       u.Bus,
		Device:    u.Device,
		Endpoint:  u.Endpoint &^ layers.USBPcapEndpointDirIn,
		Type:      ttype,
		Direction: dir,
		Payload:   u.LayerPayload(),
	}, nil
}
