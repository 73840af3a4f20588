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

	"github.com/c1728p9/usbtrace/pkg/layers"
)

var transferCodes = map[TransferType]uint8{
	TransferIsochronous: layers.USBPcapTransferIsochronous,
	TransferInterrupt:   layers.USBPcapTransferInterrupt,
	TransferControl:     layers.USBPcapTransferControl,
	TransferBulk:        layers.USBPcapTransferBulk,
}

var stageCodes = map[Direction]uint8{
	DirectionSetup:  layers.USBPcapControlStageSetup,
	DirectionData:   layers.USBPcapControlStageData,
	DirectionStatus: layers.USBPcapControlStageStatus,
}

// EncodeUSBPcap builds the USBPcap frame DecodeUSBPcap turns back into t
func EncodeUSBPcap(t *Transfer) ([]byte, error) {
	code, ok := transferCodes[t.Type]
	if !ok {
		return nil, fmt.Errorf("can not encode transfer type %s", t.Type)
	}
	hdr := layers.USBPcapHeader{
		Bus:          t.Bus,
		Device:       t.Device,
		Endpoint:     t.Endpoint &^ layers.USBPcapEndpointDirIn,
		TransferType: code,
	}
	switch {
	case t.Type == TransferControl:
		stage, ok := stageCodes[t.Direction]
		if !ok {
			return nil, fmt.Errorf("control transfer can not have direction %s", t.Direction)
		}
		hdr.Stage = stage
	case t.Direction == DirectionIn:
		hdr.Endpoint |= layers.USBPcapEndpointDirIn
	case t.Direction != DirectionOut:
		return nil, fmt.Errorf("%s transfer can not have direction %s", t.Type, t.Direction)
	}
	return layers.USBPcapFrame(hdr, t.Payload)
}
