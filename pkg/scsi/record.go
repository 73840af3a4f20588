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
	"encoding/hex"
	"fmt"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/c1728p9/usbtrace/pkg/log"
)

// Record is the flat form of a transaction used for storage and printing
type Record struct {
	ID         int        `json:"id"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Tag        uint32     `json:"tag"`
	LUN        uint8      `json:"lun"`
	Op         uint8      `json:"op"`
	Name       string     `json:"name"`
	CDB        string     `json:"cdb"`
	LBA        *uint32    `json:"lba,omitempty"`
	Blocks     *uint16    `json:"blocks,omitempty"`
	Status     uint8      `json:"status"`
	StatusName string     `json:"status_name"`
	Residue    uint32     `json:"residue"`
	Declared   uint32     `json:"declared"`
	Data       []byte     `json:"data,omitempty"`
}

// NewRecord flattens t. Data is only kept when withData is set.
func NewRecord(t *Transaction, withData bool) *Record {
	rec := &Record{
		ID:         t.ID(),
		Tag:        t.Tag(),
		LUN:        t.LUN(),
		Op:         t.Op(),
		Name:       t.Name(),
		CDB:        hex.EncodeToString(t.CBW.Command()),
		Status:     uint8(t.Status()),
		StatusName: t.Status().String(),
		Residue:    t.CSW.DataResidue,
		Declared:   t.CBW.DataTransferLength,
	}
	if ts := t.Timestamp(); !ts.IsZero() {
		rec.Timestamp = &ts
	}
	if cmd, ok := t.Command.(BlockCommand); ok {
		lba, blocks := cmd.LBA(), cmd.Blocks()
		rec.LBA = &lba
		rec.Blocks = &blocks
	}
	if withData {
		rec.Data = t.Data
	}
	return rec
}

// Row returns the columns printed for the record in tables
func (r *Record) Row() []string {
	lba, blocks := "", ""
	if r.LBA != nil {
		lba = fmt.Sprintf("0x%x", *r.LBA)
	}
	if r.Blocks != nil {
		blocks = fmt.Sprint(*r.Blocks)
	}
	return []string{
		fmt.Sprint(r.ID),
		fmt.Sprint(r.Tag),
		fmt.Sprint(r.LUN),
		fmt.Sprintf("%s(0x%02x)", r.Name, r.Op),
		lba,
		blocks,
		fmt.Sprint(r.Declared),
		r.StatusName,
	}
}

// RecordHeaders are the table headers matching Row
var RecordHeaders = []string{"Packet", "Tag", "LUN", "Op", "LBA", "Blocks", "Length", "Status"}

func (r *Record) String() string {
	result, err := yaml.Marshal(r)
	if err != nil {
		log.Info("Error occured while marshaling record, %s", err)
		return ""
	}
	return fmt.Sprintf("---\n%s", string(result))
}
