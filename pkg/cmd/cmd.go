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

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/trace"
	"github.com/c1728p9/usbtrace/pkg/usb"
)

// Helpers shared by the commands reading capture files

const (
	BusOptionName      = "bus"
	DeviceOptionName   = "device"
	EndpointOptionName = "endpoint"
)

type FilterOptions struct {
	bus      uint16
	device   uint16
	endpoint uint8
}

func (o *FilterOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().Uint16Var(&o.bus, BusOptionName, 0, "USB bus number of the device")
	cmd.Flags().Uint16Var(&o.device, DeviceOptionName, 0, "USB device address")
	cmd.Flags().Uint8Var(&o.endpoint, EndpointOptionName, 0, "Endpoint number without the direction bit")
}

// Filter returns the filter given on the command line. Fields without a
// flag fall back to the default filter of the config.
func (o *FilterOptions) Filter(cmd *cobra.Command, cfg *config.Config) *usb.Filter {
	filter := cfg.UsbFilter()
	if cmd.Flags().Changed(BusOptionName) {
		bus := o.bus
		filter.Bus = &bus
	}
	if cmd.Flags().Changed(DeviceOptionName) {
		device := o.device
		filter.Device = &device
	}
	if cmd.Flags().Changed(EndpointOptionName) {
		endpoint := o.endpoint
		filter.Endpoint = &endpoint
	}
	return filter
}

// TraceOptions builds the options of one analysis run. The mass storage
// endpoint is detected when no filter is given.
func (o *FilterOptions) TraceOptions(cmd *cobra.Command, cfg *config.Config) trace.Options {
	filter := o.Filter(cmd, cfg)
	return trace.Options{
		Filter: filter,
		Auto:   filter.IsEmpty(),
		Logger: Logger(cmd),
	}
}

// Logger returns the diagnostics sink of one command run
func Logger(cmd *cobra.Command) *log.Logger {
	return log.New(cmd.ErrOrStderr(), log.Default().Level())
}
