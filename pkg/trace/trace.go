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

package trace

import (
	"errors"
	"io"

	"github.com/c1728p9/usbtrace/pkg/capture"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

// ErrStop can be returned by the transaction callback to end a run early
// without reporting an error
var ErrStop = errors.New("stop")

// ErrNoMassStorage returned when auto detection finds no endpoint carrying CBWs
var ErrNoMassStorage = errors.New("No bulk endpoint with mass storage traffic found")

type Options struct {
	// Filter restricts the transfers fed to the reconstructor
	Filter *usb.Filter
	// Auto picks the mass storage endpoint when Filter is empty
	Auto   bool
	Logger *log.Logger
}

// Result of a run
type Result struct {
	Filter *usb.Filter `json:"filter"`
	Stats  scsi.Stats  `json:"stats"`
}

// Endpoints summarizes the traffic of every endpoint in the capture
func Endpoints(path string, logger *log.Logger) ([]*usb.EndpointSummary, error) {
	var summaries []*usb.EndpointSummary
	err := capture.WithFile(path, logger, func(r *capture.Reader) error {
		var err error
		summaries, err = usb.Summarize(r)
		return err
	})
	return summaries, err
}

// ResolveFilter returns the filter a Run with opts would use. With Auto set
// and no explicit filter the capture is scanned for a mass storage device.
func ResolveFilter(path string, opts Options) (*usb.Filter, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Filter != nil && !opts.Filter.IsEmpty() {
		return opts.Filter, nil
	}
	if !opts.Auto {
		return &usb.Filter{}, nil
	}
	summaries, err := Endpoints(path, opts.Logger)
	if err != nil {
		return nil, err
	}
	filter := usb.DetectMassStorage(summaries)
	if filter == nil {
		return nil, ErrNoMassStorage
	}
	opts.Logger.Info("Using mass storage endpoint %s", filter)
	return filter, nil
}

// Run reconstructs the SCSI transactions of the capture at path and calls fn
// for each of them in capture order. The file is closed when Run returns.
func Run(path string, opts Options, fn func(t *scsi.Transaction) error) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	filter, err := ResolveFilter(path, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Filter: filter}
	err = capture.WithFile(path, opts.Logger, func(r *capture.Reader) error {
		reconstructor := scsi.NewReconstructor(filter.Apply(r), opts.Logger)
		defer func() {
			result.Stats = reconstructor.Stats()
		}()
		for {
			t, err := reconstructor.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := fn(t); err != nil {
				return err
			}
		}
	})
	if errors.Is(err, ErrStop) {
		err = nil
	}
	opts.Logger.Debug("Run finished: %+v", result.Stats)
	return result, err
}

// Collect runs the reconstruction and returns all transactions
func Collect(path string, opts Options) ([]*scsi.Transaction, *Result, error) {
	var result []*scsi.Transaction
	res, err := Run(path, opts, func(t *scsi.Transaction) error {
		result = append(result, t)
		return nil
	})
	return result, res, err
}
