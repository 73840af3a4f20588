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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yml ", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func records() Records {
	lba := uint32(0x10)
	blocks := uint16(2)
	return Records{
		{ID: 1, Tag: 1, Op: scsi.OpTestUnitReady, Name: "TestUnitReady", StatusName: "Pass"},
		{ID: 4, Tag: 2, Op: scsi.OpRead10, Name: "Read10", LBA: &lba, Blocks: &blocks, Declared: 1024, StatusName: "Pass"},
	}
}

func TestPrintRecordsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(records()))
	out := buf.String()
	assert.Contains(t, out, "PACKET")
	assert.Contains(t, out, "TestUnitReady(0x00)")
	assert.Contains(t, out, "Read10(0x28)")
	assert.Contains(t, out, "0x10")
}

func TestPrintRecordsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatJSON).Print(records()))
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Read10", got[1]["name"])
	assert.NotContains(t, got[0], "lba")
}

func TestPrintRecordsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatYAML).Print(records()))
	assert.Contains(t, buf.String(), "name: Read10")
	assert.Contains(t, buf.String(), "lba: 16")
}

func TestPrintEndpoints(t *testing.T) {
	var buf bytes.Buffer
	summaries := Endpoints{
		{EndpointKey: usb.EndpointKey{Bus: 1, Device: 4, Endpoint: 2, Type: usb.TransferBulk}, Out: 3, CBWs: 3},
	}
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(summaries))
	assert.Contains(t, buf.String(), "Bulk")
}

func TestPrintFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(map[string]int{"emitted": 3}))
	assert.Equal(t, "emitted: 3\n", buf.String())
}
