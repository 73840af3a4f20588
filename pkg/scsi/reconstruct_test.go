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
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

type sequence struct {
	xfers []*usb.Transfer
}

func (s *sequence) add(dir usb.Direction, payload []byte) *sequence {
	s.xfers = append(s.xfers, &usb.Transfer{
		ID:        len(s.xfers) + 1,
		Bus:       1,
		Device:    10,
		Endpoint:  2,
		Type:      usb.TransferBulk,
		Direction: dir,
		Payload:   payload,
	})
	return s
}

func (s *sequence) cbw(tag, length uint32, in bool, cb []byte) *sequence {
	return s.add(usb.DirectionOut, layers.NewCBW(tag, length, in, 0, cb).Bytes())
}

func (s *sequence) csw(tag uint32, status layers.CSWStatus) *sequence {
	return s.add(usb.DirectionIn, layers.NewCSW(tag, 0, status).Bytes())
}

func (s *sequence) read10(tag uint32, lba uint32, blocks uint16) *sequence {
	cdb := layers.CDB10{Op: OpRead10, LBA: lba, Length: blocks}
	length := uint32(blocks) * 512
	return s.cbw(tag, length, true, cdb.Bytes()).
		add(usb.DirectionIn, bytes.Repeat([]byte{byte(tag)}, int(length))).
		csw(tag, layers.CSWStatusPass)
}

func (s *sequence) testUnitReady(tag uint32, status layers.CSWStatus) *sequence {
	return s.cbw(tag, 0, false, make([]byte, 6)).csw(tag, status)
}

func (s *sequence) run(t *testing.T) ([]*Transaction, Stats) {
	t.Helper()
	r := NewReconstructor(usb.NewSliceSource(s.xfers), log.Discard())
	txs, err := ReadAll(r)
	require.NoError(t, err)
	return txs, r.Stats()
}

func TestRead10Example(t *testing.T) {
	s := &sequence{}
	s.cbw(1, 512, true, []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0}).
		add(usb.DirectionIn, make([]byte, 512)).
		csw(1, layers.CSWStatusPass)

	txs, stats := s.run(t)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, KindRead10, tx.Command.Kind())
	read, ok := tx.Command.(*Read10)
	require.True(t, ok)
	assert.Equal(t, uint32(0), read.LBA())
	assert.Equal(t, uint16(1), read.Blocks())
	assert.Equal(t, layers.CSWStatusPass, tx.Status())
	assert.Equal(t, tx.CBW.Tag, tx.CSW.Tag)
	assert.Len(t, tx.Data, 512)
	assert.Len(t, tx.Transfers, 3)
	assert.Equal(t, 1, tx.ID())
	assert.Equal(t, 1, stats.Emitted)
	assert.Equal(t, "<SCSI op=Read10(0x28) lun=0 lba=0x0 blocks=1 status=Pass (0)>", tx.String())
}

func TestWrite10(t *testing.T) {
	cdb := layers.CDB10{Op: OpWrite10, LBA: 0x20, Length: 2}
	s := &sequence{}
	s.cbw(5, 1024, false, cdb.Bytes()).
		add(usb.DirectionOut, make([]byte, 1024)).
		csw(5, layers.CSWStatusPass)

	txs, _ := s.run(t)
	require.Len(t, txs, 1)
	write, ok := txs[0].Command.(*Write10)
	require.True(t, ok)
	assert.Equal(t, uint32(0x20), write.LBA())
	assert.Equal(t, uint16(2), write.Blocks())
	assert.Len(t, txs[0].Data, 1024)
}

func TestZeroLengthCommandSkipsDataStage(t *testing.T) {
	s := &sequence{}
	s.testUnitReady(3, layers.CSWStatusFail)

	txs, _ := s.run(t)
	require.Len(t, txs, 1)
	assert.Equal(t, KindTestUnitReady, txs[0].Command.Kind())
	assert.False(t, txs[0].HasData())
	assert.Nil(t, txs[0].Data)
	assert.Len(t, txs[0].Transfers, 2)
	assert.Equal(t, layers.CSWStatusFail, txs[0].Status())
	_, isBlock := txs[0].Command.(BlockCommand)
	assert.False(t, isBlock)
}

func TestZeroLengthCommandRequiresImmediateCSW(t *testing.T) {
	s := &sequence{}
	s.cbw(3, 0, false, make([]byte, 6)).
		add(usb.DirectionIn, []byte("unexpected data")).
		csw(3, layers.CSWStatusPass)

	txs, stats := s.run(t)
	assert.Empty(t, txs)
	assert.Equal(t, 1, stats.Dropped)
}

func TestDeclaredDataButDeviceAnsweredWithCSW(t *testing.T) {
	s := &sequence{}
	s.cbw(9, 36, true, []byte{0x12, 0, 0, 0, 36, 0}).
		csw(9, layers.CSWStatusFail)

	txs, _ := s.run(t)
	require.Len(t, txs, 1)
	assert.False(t, txs[0].HasData())
	assert.Len(t, txs[0].Transfers, 2)
	assert.Equal(t, KindOpaque, txs[0].Command.Kind())
}

func TestOpaqueCommand(t *testing.T) {
	s := &sequence{}
	s.cbw(4, 36, true, []byte{0x12, 0, 0, 0, 36, 0}).
		add(usb.DirectionIn, make([]byte, 36)).
		csw(4, layers.CSWStatusPass)

	txs, _ := s.run(t)
	require.Len(t, txs, 1)
	opaque, ok := txs[0].Command.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, uint8(0x12), opaque.Op())
	assert.Equal(t, uint8(0x12), txs[0].Op())
	assert.Equal(t, uint8(0), txs[0].LUN())
	assert.Equal(t, "<SCSI op=Unknown(0x12) lun=0 status=Pass (0)>", txs[0].String())
}

func TestDirectionMismatchKeepsData(t *testing.T) {
	s := &sequence{}
	cdb := layers.CDB10{Op: OpRead10, LBA: 1, Length: 1}
	s.cbw(2, 512, true, cdb.Bytes()).
		add(usb.DirectionOut, make([]byte, 512)).
		csw(2, layers.CSWStatusPass)

	txs, stats := s.run(t)
	require.Len(t, txs, 1)
	assert.Len(t, txs[0].Data, 512)
	assert.Equal(t, 1, stats.DirectionMismatches)
}

func TestEveryEmittedTransactionHasMatchingTags(t *testing.T) {
	s := &sequence{}
	for tag := uint32(1); tag <= 20; tag++ {
		if tag%3 == 0 {
			s.testUnitReady(tag, layers.CSWStatusPass)
		} else {
			s.read10(tag, tag*8, 1)
		}
	}
	txs, stats := s.run(t)
	require.Len(t, txs, 20)
	for i, tx := range txs {
		assert.Equal(t, uint32(i+1), tx.CBW.Tag)
		assert.Equal(t, tx.CBW.Tag, tx.CSW.Tag)
	}
	assert.Zero(t, stats.Discarded)
	assert.Zero(t, stats.Dropped)
}

func TestResynchronization(t *testing.T) {
	garbage := []struct {
		name string
		dir  usb.Direction
		data []byte
	}{
		{"short out", usb.DirectionOut, []byte{1, 2, 3}},
		{"cbw sized without signature", usb.DirectionOut, make([]byte, layers.CBWSize)},
		{"stray csw", usb.DirectionIn, layers.NewCSW(77, 0, layers.CSWStatusPass).Bytes()},
		{"cbw going in", usb.DirectionIn, layers.NewCBW(77, 0, false, 0, []byte{0}).Bytes()},
	}
	for _, g := range garbage {
		t.Run(g.name, func(t *testing.T) {
			s := &sequence{}
			s.read10(1, 0, 1)
			s.add(g.dir, g.data)
			s.read10(2, 8, 1)

			txs, stats := s.run(t)
			require.Len(t, txs, 2)
			assert.Equal(t, uint32(1), txs[0].Tag())
			assert.Equal(t, uint32(2), txs[1].Tag())
			assert.Equal(t, 1, stats.Discarded)
		})
	}
}

func TestBadCSWDropsTransactionAndIsNotReused(t *testing.T) {
	s := &sequence{}
	s.cbw(1, 0, false, make([]byte, 6))
	s.csw(2, layers.CSWStatusPass)
	s.testUnitReady(3, layers.CSWStatusPass)

	txs, stats := s.run(t)
	require.Len(t, txs, 1)
	assert.Equal(t, uint32(3), txs[0].Tag())
	assert.Equal(t, 1, stats.Dropped)
	// a reused CSW would show up as a discarded CBW candidate
	assert.Equal(t, 0, stats.Discarded)
}

func TestBadCSWVariants(t *testing.T) {
	tests := []struct {
		name string
		dir  usb.Direction
		data []byte
	}{
		{"wrong direction", usb.DirectionOut, layers.NewCSW(1, 0, layers.CSWStatusPass).Bytes()},
		{"wrong size", usb.DirectionIn, append(layers.NewCSW(1, 0, layers.CSWStatusPass).Bytes(), 0)},
		{"wrong signature", usb.DirectionIn, append([]byte("XXXX"), layers.NewCSW(1, 0, layers.CSWStatusPass).Bytes()[4:]...)},
		{"wrong tag", usb.DirectionIn, layers.NewCSW(99, 0, layers.CSWStatusPass).Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &sequence{}
			s.read10(1, 0, 1)
			s.xfers = s.xfers[:2]
			s.add(tt.dir, tt.data)
			s.testUnitReady(2, layers.CSWStatusPass)

			txs, stats := s.run(t)
			require.Len(t, txs, 1)
			assert.Equal(t, uint32(2), txs[0].Tag())
			assert.Equal(t, 1, stats.Dropped)
		})
	}
}

func TestEndOfStreamMidTransaction(t *testing.T) {
	tests := []struct {
		name  string
		build func(s *sequence)
	}{
		{"after cbw", func(s *sequence) { s.cbw(2, 512, true, []byte{0x28}) }},
		{"after data", func(s *sequence) {
			s.cbw(2, 512, true, []byte{0x28}).add(usb.DirectionIn, make([]byte, 512))
		}},
		{"zero length after cbw", func(s *sequence) { s.cbw(2, 0, false, []byte{0}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &sequence{}
			s.testUnitReady(1, layers.CSWStatusPass)
			tt.build(s)

			r := NewReconstructor(usb.NewSliceSource(s.xfers), log.Discard())
			tx, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, uint32(1), tx.Tag())

			_, err = r.Next()
			assert.Equal(t, io.EOF, err)
			_, err = r.Next()
			assert.Equal(t, io.EOF, err)
			assert.Equal(t, 1, r.Stats().Incomplete)
			assert.Equal(t, 1, r.Stats().Emitted)
		})
	}
}

func TestEmptyInput(t *testing.T) {
	r := NewReconstructor(usb.NewSliceSource(nil), log.Discard())
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, r.Stats().Incomplete)
}

type failingSource struct {
	xfers []*usb.Transfer
	err   error
}

func (f *failingSource) Next() (*usb.Transfer, error) {
	if len(f.xfers) == 0 {
		return nil, f.err
	}
	x := f.xfers[0]
	f.xfers = f.xfers[1:]
	return x, nil
}

func TestSourceErrorsArePropagated(t *testing.T) {
	s := &sequence{}
	s.testUnitReady(1, layers.CSWStatusPass)
	s.cbw(2, 0, false, []byte{0})
	fault := errors.New("broken capture")

	r := NewReconstructor(&failingSource{xfers: s.xfers, err: fault}, log.Discard())
	txs, err := ReadAll(r)
	assert.Equal(t, fault, err)
	assert.Len(t, txs, 1)
}

func TestIdempotence(t *testing.T) {
	s := &sequence{}
	s.read10(1, 0, 2)
	s.add(usb.DirectionOut, []byte("noise"))
	s.testUnitReady(2, layers.CSWStatusPass)
	s.read10(3, 100, 1)

	first, _ := s.run(t)
	second, _ := s.run(t)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, NewRecord(first[i], true), NewRecord(second[i], true))
	}
}

func TestValidationLogged(t *testing.T) {
	var buf bytes.Buffer
	s := &sequence{}
	s.add(usb.DirectionIn, []byte{1})
	r := NewReconstructor(usb.NewSliceSource(s.xfers), log.New(&buf, log.ErrorLevel))
	_, err := ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrong CBW direction for packet 1: In")
}

func TestValidateWrappers(t *testing.T) {
	cb := []byte{OpRead10, 0, 0, 0, 0, 8, 0, 0, 1, 0}
	out := &usb.Transfer{ID: 3, Direction: usb.DirectionOut, Payload: layers.NewCBW(5, 512, true, 1, cb).Bytes()}
	cbw, err := validateCBW(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), cbw.Tag)
	assert.Equal(t, uint32(512), cbw.DataTransferLength)
	assert.True(t, cbw.IsDataIn())
	assert.Equal(t, uint8(1), cbw.LUN)
	assert.Equal(t, cb, cbw.Command())

	in := &usb.Transfer{ID: 4, Direction: usb.DirectionIn, Payload: layers.NewCSW(5, 12, layers.CSWStatusFail).Bytes()}
	csw, err := validateCSW(in, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), csw.DataResidue)
	assert.Equal(t, layers.CSWStatusFail, csw.Status)

	unsigned := layers.NewCBW(5, 0, false, 0, cb)
	unsigned.Signature = 0
	_, err = validateCBW(&usb.Transfer{ID: 6, Direction: usb.DirectionOut, Payload: unsigned.Bytes()})
	var validation ErrValidation
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "signature", validation.Field)
	assert.Equal(t, 6, validation.ID)

	_, err = validateCSW(in, 6)
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "tag", validation.Field)
}
