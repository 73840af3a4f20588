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
	"time"

	"github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

// Transaction is one complete CBW, optional data, CSW exchange
type Transaction struct {
	CBW       layers.CBW
	Data      []byte // nil when there was no data stage
	CSW       layers.CSW
	Transfers []*usb.Transfer
	Command   Command
}

// ID returns the packet index of the CBW
func (t *Transaction) ID() int {
	if len(t.Transfers) == 0 {
		return 0
	}
	return t.Transfers[0].ID
}

// Timestamp returns the capture time of the CBW
func (t *Transaction) Timestamp() time.Time {
	if len(t.Transfers) == 0 {
		return time.Time{}
	}
	return t.Transfers[0].Timestamp
}

func (t *Transaction) Tag() uint32 {
	return t.CBW.Tag
}

func (t *Transaction) Op() uint8 {
	return t.CBW.Opcode()
}

func (t *Transaction) LUN() uint8 {
	return t.CBW.LUN
}

func (t *Transaction) Status() layers.CSWStatus {
	return t.CSW.Status
}

func (t *Transaction) HasData() bool {
	return t.Data != nil
}

func (t *Transaction) Name() string {
	return t.Command.Kind().String()
}

func (t *Transaction) String() string {
	info := Describe(t.Command)
	if info != "" {
		info = " " + info
	}
	return fmt.Sprintf("<SCSI op=%s(0x%02x) lun=%d%s status=%s (%d)>",
		t.Name(), t.Op(), t.LUN(), info, t.Status(), uint8(t.Status()))
}
