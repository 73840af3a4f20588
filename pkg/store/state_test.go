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

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/scsi"
)

func newState(t *testing.T) *State {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "db", config.DBFile)
	s, err := NewState(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func records(n int) []*scsi.Record {
	var result []*scsi.Record
	for i := 0; i < n; i++ {
		lba := uint32(i * 8)
		blocks := uint16(8)
		when := time.Date(2021, 3, 4, 5, 6, 7, i, time.UTC)
		result = append(result, &scsi.Record{
			ID:         i*3 + 1,
			Timestamp:  &when,
			Tag:        uint32(i + 1),
			Op:         scsi.OpRead10,
			Name:       "Read10",
			LBA:        &lba,
			Blocks:     &blocks,
			StatusName: "Pass",
			Declared:   4096,
			Data:       []byte{byte(i), 1, 2},
		})
	}
	return result
}

func TestSaveAndLoadCapture(t *testing.T) {
	s := newState(t)
	want := records(300)
	require.NoError(t, s.SaveCapture("disk", want))

	got, err := s.LoadCapture("disk")
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Tag, got[i].Tag)
		assert.Equal(t, *want[i].LBA, *got[i].LBA)
		assert.Equal(t, want[i].Data, got[i].Data)
		require.NotNil(t, got[i].Timestamp)
		assert.True(t, want[i].Timestamp.Equal(*got[i].Timestamp))
	}
}

func TestSaveCaptureReplaces(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.SaveCapture("disk", records(5)))
	require.NoError(t, s.SaveCapture("disk", records(2)))

	got, err := s.LoadCapture("disk")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListAndDeleteCaptures(t *testing.T) {
	s := newState(t)
	names, err := s.ListCaptures()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.SaveCapture("b", records(1)))
	require.NoError(t, s.SaveCapture("a", nil))

	names, err = s.ListCaptures()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, s.DeleteCapture("a"))
	assert.Equal(t, ErrCaptureNotFound{Name: "a"}, s.DeleteCapture("a"))
	_, err = s.LoadCapture("a")
	assert.Equal(t, ErrCaptureNotFound{Name: "a"}, err)

	names, err = s.ListCaptures()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestEmptyCaptureLoadsEmpty(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.SaveCapture("empty", nil))
	got, err := s.LoadCapture("empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}
