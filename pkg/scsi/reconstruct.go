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
	"io"

	"github.com/google/gopacket"

	"github.com/c1728p9/usbtrace/pkg/layers"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

type state int

const (
	stateSeekingCBW state = iota
	stateDataOrCSW
	stateAwaitingCSW
	stateEmit
)

func (s state) String() string {
	switch s {
	case stateSeekingCBW:
		return "SeekingCBW"
	case stateDataOrCSW:
		return "DataOrCSW"
	case stateAwaitingCSW:
		return "AwaitingCSW"
	case stateEmit:
		return "Emit"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stats counts what happened during one reconstruction run
type Stats struct {
	Transfers           int `json:"transfers"`
	Discarded           int `json:"discarded"`            // transfers skipped while looking for a CBW
	Dropped             int `json:"dropped"`              // commands without a valid CSW
	DirectionMismatches int `json:"direction_mismatches"` // data stages going the wrong way
	Incomplete          int `json:"incomplete"`           // command cut by the end of the capture
	Emitted             int `json:"emitted"`
}

// Reconstructor folds the transfers of one mass storage endpoint into SCSI
// transactions. Malformed transfers are logged and skipped, the reconstructor
// resynchronizes on the next valid CBW instead of giving up.
type Reconstructor struct {
	src    usb.TransferSource
	logger *log.Logger

	state state
	cbw   *layers.CBW
	data  []byte
	csw   *layers.CSW
	xfers []*usb.Transfer

	stats Stats
	err   error
}

func NewReconstructor(src usb.TransferSource, logger *log.Logger) *Reconstructor {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconstructor{
		src:    src,
		logger: logger,
		state:  stateSeekingCBW,
	}
}

func (r *Reconstructor) Stats() Stats {
	return r.stats
}

func validateCBW(xfer *usb.Transfer) (*layers.CBW, error) {
	if xfer.Direction != usb.DirectionOut {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CBW", Field: "direction", Value: xfer.Direction.String()}
	}
	if len(xfer.Payload) != layers.CBWSize {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CBW", Field: "size", Value: fmt.Sprint(len(xfer.Payload))}
	}
	layer := &layers.CBWLayer{}
	if err := layer.DecodeFromBytes(xfer.Payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CBW", Field: "signature", Value: fmt.Sprintf("%q", xfer.Payload[:4])}
	}
	return &layer.CBW, nil
}

func validateCSW(xfer *usb.Transfer, tag uint32) (*layers.CSW, error) {
	if xfer.Direction != usb.DirectionIn {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CSW", Field: "direction", Value: xfer.Direction.String()}
	}
	if len(xfer.Payload) != layers.CSWSize {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CSW", Field: "size", Value: fmt.Sprint(len(xfer.Payload))}
	}
	layer := &layers.CSWLayer{}
	if err := layer.DecodeFromBytes(xfer.Payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CSW", Field: "signature", Value: fmt.Sprintf("%q", xfer.Payload[:4])}
	}
	csw := &layer.CSW
	if csw.Tag != tag {
		return nil, ErrValidation{ID: xfer.ID, Stage: "CSW", Field: "tag", Value: fmt.Sprintf("%d, expected %d", csw.Tag, tag)}
	}
	return csw, nil
}

func (r *Reconstructor) pull() (*usb.Transfer, error) {
	xfer, err := r.src.Next()
	if err != nil {
		return nil, err
	}
	r.stats.Transfers++
	return xfer, nil
}

func (r *Reconstructor) reset() {
	r.state = stateSeekingCBW
	r.cbw = nil
	r.data = nil
	r.csw = nil
	r.xfers = nil
}

// stop ends the sequence. A command in flight is discarded.
func (r *Reconstructor) stop(err error) error {
	if r.state != stateSeekingCBW {
		r.logger.Debug("Discarding command with tag %d in state %s: %s", r.cbw.Tag, r.state, err)
		r.stats.Incomplete++
	}
	r.reset()
	r.err = err
	return err
}

// Next returns the next complete transaction. At the end of the transfers it
// returns io.EOF. Errors of the transfer source are returned unchanged.
func (r *Reconstructor) Next() (*Transaction, error) {
	if r.err != nil {
		return nil, r.err
	}
	for {
		switch r.state {
		case stateSeekingCBW:
			xfer, err := r.pull()
			if err != nil {
				return nil, r.stop(err)
			}
			cbw, err := validateCBW(xfer)
			if err != nil {
				r.logger.Error("%s", err)
				r.stats.Discarded++
				continue
			}
			r.cbw = cbw
			r.xfers = []*usb.Transfer{xfer}
			if cbw.DataTransferLength == 0 {
				r.state = stateAwaitingCSW
			} else {
				r.state = stateDataOrCSW
			}

		case stateDataOrCSW:
			xfer, err := r.pull()
			if err != nil {
				return nil, r.stop(err)
			}
			r.xfers = append(r.xfers, xfer)
			// A 13 byte data stage starting with "USBS" and carrying the
			// right tag is taken for the CSW. The capture has nothing better
			// to tell them apart.
			if csw, err := validateCSW(xfer, r.cbw.Tag); err == nil {
				r.logger.Debug("Packet %d: no data stage for tag %d, %d bytes declared",
					xfer.ID, r.cbw.Tag, r.cbw.DataTransferLength)
				r.csw = csw
				r.state = stateEmit
				continue
			}
			expected := usb.DirectionOut
			if r.cbw.IsDataIn() {
				expected = usb.DirectionIn
			}
			if xfer.Direction != expected {
				r.logger.Error("Wrong direction for packet %d in data stage - got %s, expected %s",
					xfer.ID, xfer.Direction, expected)
				r.stats.DirectionMismatches++
			}
			r.data = xfer.Payload
			r.state = stateAwaitingCSW

		case stateAwaitingCSW:
			xfer, err := r.pull()
			if err != nil {
				return nil, r.stop(err)
			}
			csw, err := validateCSW(xfer, r.cbw.Tag)
			if err != nil {
				r.logger.Error("%s, dropping command with tag %d", err, r.cbw.Tag)
				r.stats.Dropped++
				r.reset()
				continue
			}
			r.xfers = append(r.xfers, xfer)
			r.csw = csw
			r.state = stateEmit

		case stateEmit:
			t := &Transaction{
				CBW:       *r.cbw,
				Data:      r.data,
				CSW:       *r.csw,
				Transfers: r.xfers,
				Command:   DecodeCommand(r.cbw.CB[:]),
			}
			r.reset()
			r.stats.Emitted++
			r.logger.Debug("%s", t)
			return t, nil
		}
	}
}

// ReadAll drains the reconstructor
func ReadAll(r *Reconstructor) ([]*Transaction, error) {
	var result []*Transaction
	for {
		t, err := r.Next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result = append(result, t)
	}
}
