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

package image

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c1728p9/usbtrace/pkg/capture"
	"github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/trace"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

type memImage struct {
	buf []byte
}

func (m *memImage) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:], p), nil
}

func blockTx(op uint8, lba uint32, fill byte, status layers.CSWStatus) *scsi.Transaction {
	cdb := layers.CDB10{Op: op, LBA: lba, Length: 1}
	return &scsi.Transaction{
		CBW:       *layers.NewCBW(1, 512, op == scsi.OpRead10, 0, cdb.Bytes()),
		Data:      bytes.Repeat([]byte{fill}, 512),
		CSW:       *layers.NewCSW(1, 0, status),
		Transfers: []*usb.Transfer{{ID: 1}},
		Command:   scsi.DecodeCommand(cdb.Bytes()),
	}
}

func turTx(status layers.CSWStatus) *scsi.Transaction {
	cb := make([]byte, 6)
	return &scsi.Transaction{
		CBW:       *layers.NewCBW(2, 0, false, 0, cb),
		CSW:       *layers.NewCSW(2, 0, status),
		Transfers: []*usb.Transfer{{ID: 2}},
		Command:   scsi.DecodeCommand(cb),
	}
}

func TestRebuilderPlacesBlocks(t *testing.T) {
	img := &memImage{}
	b := NewRebuilder(img, Options{Logger: log.Discard()})

	require.NoError(t, b.Add(blockTx(scsi.OpRead10, 2, 0xaa, layers.CSWStatusPass)))
	require.NoError(t, b.Add(blockTx(scsi.OpWrite10, 0, 0xbb, layers.CSWStatusPass)))
	require.NoError(t, b.Add(blockTx(scsi.OpRead10, 1, 0xcc, layers.CSWStatusFail)))
	require.NoError(t, b.Add(turTx(layers.CSWStatusFail)))

	require.Len(t, img.buf, 3*512)
	assert.Equal(t, bytes.Repeat([]byte{0xbb}, 512), img.buf[:512])
	assert.Equal(t, make([]byte, 512), img.buf[512:1024])
	assert.Equal(t, bytes.Repeat([]byte{0xaa}, 512), img.buf[1024:])

	stats := b.Stats()
	assert.Equal(t, 1, stats.ReadBlocks)
	assert.Equal(t, 1, stats.WrittenBlocks)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1024, stats.Bytes)
	assert.False(t, stats.Stopped)
}

func TestRebuilderBlockSize(t *testing.T) {
	img := &memImage{}
	b := NewRebuilder(img, Options{BlockSize: 4096, Logger: log.Discard()})
	require.NoError(t, b.Add(blockTx(scsi.OpRead10, 1, 0x11, layers.CSWStatusPass)))
	assert.Len(t, img.buf, 4096+512)
}

func TestRebuilderStopOnNotReady(t *testing.T) {
	img := &memImage{}
	b := NewRebuilder(img, Options{StopOnNotReady: true, Logger: log.Discard()})

	require.NoError(t, b.Add(turTx(layers.CSWStatusPass)))
	err := b.Add(turTx(layers.CSWStatusFail))
	assert.ErrorIs(t, err, ErrMediumNotReady)
	assert.True(t, errors.Is(err, trace.ErrStop))
	assert.ErrorIs(t, b.Add(blockTx(scsi.OpRead10, 0, 1, layers.CSWStatusPass)), ErrMediumNotReady)
	assert.Empty(t, img.buf)
	assert.True(t, b.Stats().Stopped)
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	read := layers.CDB10{Op: scsi.OpRead10, LBA: 1, Length: 1}
	xfers := []*usb.Transfer{
		{Bus: 1, Device: 4, Endpoint: 2, Type: usb.TransferBulk, Direction: usb.DirectionOut,
			Payload: layers.NewCBW(1, 512, true, 0, read.Bytes()).Bytes()},
		{Bus: 1, Device: 4, Endpoint: 1, Type: usb.TransferBulk, Direction: usb.DirectionIn,
			Payload: bytes.Repeat([]byte{0x5a}, 512)},
		{Bus: 1, Device: 4, Endpoint: 1, Type: usb.TransferBulk, Direction: usb.DirectionIn,
			Payload: layers.NewCSW(1, 0, layers.CSWStatusPass).Bytes()},
	}
	path := filepath.Join(dir, "disk.pcapng")
	file, err := os.Create(path)
	require.NoError(t, err)
	_, err = capture.Export(file, usb.NewSliceSource(xfers))
	require.NoError(t, err)
	require.NoError(t, file.Close())

	out := filepath.Join(dir, "disk.img")
	stats, err := Rebuild(path, out, trace.Options{Auto: true, Logger: log.Discard()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ReadBlocks)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, data, 1024)
	assert.Equal(t, bytes.Repeat([]byte{0x5a}, 512), data[512:])
}

func TestRebuildLeavesNoImageOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyboard.pcapng")
	file, err := os.Create(path)
	require.NoError(t, err)
	_, err = capture.Export(file, usb.NewSliceSource([]*usb.Transfer{
		{Bus: 1, Device: 7, Endpoint: 3, Type: usb.TransferBulk, Direction: usb.DirectionIn, Payload: []byte("key")},
	}))
	require.NoError(t, err)
	require.NoError(t, file.Close())

	out := filepath.Join(dir, "disk.img")
	_, err = Rebuild(path, out, trace.Options{Auto: true, Logger: log.Discard()}, Options{})
	assert.ErrorIs(t, err, trace.ErrNoMassStorage)
	assert.NoFileExists(t, out)

	_, err = Rebuild(filepath.Join(dir, "missing.pcapng"), out, trace.Options{Logger: log.Discard()}, Options{})
	assert.Error(t, err)
	assert.NoFileExists(t, out)
}
