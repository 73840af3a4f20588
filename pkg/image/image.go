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
	"fmt"
	"io"
	"os"

	"github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/trace"
)

const DefaultBlockSize = 512

// ErrMediumNotReady returned by Add when a Test Unit Ready fails and the
// rebuilder is set to stop there. It ends a trace.Run without error.
var ErrMediumNotReady = fmt.Errorf("medium not ready: %w", trace.ErrStop)

type Options struct {
	BlockSize      int
	StopOnNotReady bool
	Logger         *log.Logger
}

type Stats struct {
	ReadBlocks    int  `json:"read_blocks"`
	WrittenBlocks int  `json:"written_blocks"`
	Bytes         int  `json:"bytes"`
	Skipped       int  `json:"skipped"`
	Stopped       bool `json:"stopped"`
}

// Rebuilder places the data of successful block commands at their offset
// in a raw disk image
type Rebuilder struct {
	out   io.WriterAt
	opts  Options
	stats Stats
}

func NewRebuilder(out io.WriterAt, opts Options) *Rebuilder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Rebuilder{out: out, opts: opts}
}

func (b *Rebuilder) Stats() Stats {
	return b.stats
}

// Add consumes one transaction
func (b *Rebuilder) Add(t *scsi.Transaction) error {
	if b.stats.Stopped {
		return ErrMediumNotReady
	}
	switch cmd := t.Command.(type) {
	case *scsi.TestUnitReady:
		if b.opts.StopOnNotReady && t.Status() != layers.CSWStatusPass {
			b.opts.Logger.Info("Packet %d: medium not ready, status %s", t.ID(), t.Status())
			b.stats.Stopped = true
			return ErrMediumNotReady
		}
		return nil
	case scsi.BlockCommand:
		if t.Status() != layers.CSWStatusPass || !t.HasData() {
			b.opts.Logger.Debug("Packet %d: skipping %s", t.ID(), t)
			b.stats.Skipped++
			return nil
		}
		offset := int64(cmd.LBA()) * int64(b.opts.BlockSize)
		n, err := b.out.WriteAt(t.Data, offset)
		if err != nil {
			b.opts.Logger.Error("Error while writing %d bytes at offset %d", len(t.Data), offset)
			return err
		}
		b.stats.Bytes += n
		blocks := (n + b.opts.BlockSize - 1) / b.opts.BlockSize
		if cmd.Kind() == scsi.KindWrite10 {
			b.stats.WrittenBlocks += blocks
		} else {
			b.stats.ReadBlocks += blocks
		}
	}
	return nil
}

// Writer is a Rebuilder writing into a file
type Writer struct {
	file *os.File
	*Rebuilder
}

func NewWriter(filename string, opts Options) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		log.Error("Error while creating file: %s", filename)
		return nil, err
	}
	return &Writer{
		file:      file,
		Rebuilder: NewRebuilder(file, opts),
	}, nil
}

func (w *Writer) Flush() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Rebuild runs the reconstruction of the capture at path into the image
// filename. The image is removed again when the run fails before any data
// was written.
func Rebuild(path, filename string, topts trace.Options, opts Options) (Stats, error) {
	if opts.Logger == nil {
		opts.Logger = topts.Logger
	}
	filter, err := trace.ResolveFilter(path, topts)
	if err != nil {
		return Stats{}, err
	}
	topts.Filter = filter

	w, err := NewWriter(filename, opts)
	if err != nil {
		return Stats{}, err
	}
	_, err = trace.Run(path, topts, w.Add)
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	if err != nil && w.Stats().Bytes == 0 {
		os.Remove(filename)
	}
	return w.Stats(), err
}
