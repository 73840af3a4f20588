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

package output

import (
	"fmt"

	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

// Records prints one line per transaction
type Records []*scsi.Record

func (r Records) Headers() []string {
	return scsi.RecordHeaders
}

func (r Records) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, rec := range r {
		rows = append(rows, rec.Row())
	}
	return rows
}

// Endpoints prints traffic counters per endpoint
type Endpoints []*usb.EndpointSummary

func (e Endpoints) Headers() []string {
	return []string{"Bus", "Device", "Endpoint", "Type", "In", "Out", "Control", "Bytes", "CBW", "CSW"}
}

func (e Endpoints) Rows() [][]string {
	rows := make([][]string, 0, len(e))
	for _, s := range e {
		rows = append(rows, []string{
			fmt.Sprint(s.Bus),
			fmt.Sprint(s.Device),
			fmt.Sprint(s.Endpoint),
			s.Type.String(),
			fmt.Sprint(s.In),
			fmt.Sprint(s.Out),
			fmt.Sprint(s.Other),
			fmt.Sprint(s.Bytes),
			fmt.Sprint(s.CBWs),
			fmt.Sprint(s.CSWs),
		})
	}
	return rows
}

// Names prints a single column list
type Names []string

func (n Names) Headers() []string {
	return []string{"Name"}
}

func (n Names) Rows() [][]string {
	rows := make([][]string, 0, len(n))
	for _, name := range n {
		rows = append(rows, []string{name})
	}
	return rows
}
