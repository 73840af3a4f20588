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

package analyze

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	pkgcmd "github.com/c1728p9/usbtrace/pkg/cmd"
	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/output"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/store"
	"github.com/c1728p9/usbtrace/pkg/trace"
)

const (
	OutputOptionName = "output"
	SaveOptionName   = "save"
	DataOptionName   = "data"
)

const analyzeExample = `
Print the SCSI commands sent to the mass storage device of a capture
# usbtrace analyze stick.pcapng

Restrict the analysis to one device and save the result
# usbtrace analyze --bus 1 --device 12 --save stick stick.pcapng
`

func NewCommand(cfg *config.Config) *cobra.Command {
	var outputFormat, save string
	var withData bool
	filterOpts := &pkgcmd.FilterOptions{}
	cmd := &cobra.Command{
		Use:     "analyze FILE",
		Short:   "Reconstruct SCSI transactions from a capture file",
		Example: analyzeExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			opts := filterOpts.TraceOptions(cmd, cfg)
			records := output.Records{}
			res, err := trace.Run(args[0], opts, func(t *scsi.Transaction) error {
				records = append(records, scsi.NewRecord(t, withData || save != ""))
				return nil
			})
			if err != nil {
				return err
			}
			opts.Logger.Info("Endpoint: %s transfers: %d transactions: %d discarded: %d dropped: %d",
				res.Filter, res.Stats.Transfers, res.Stats.Emitted, res.Stats.Discarded, res.Stats.Dropped)

			if save != "" {
				if err := saveRecords(cfg, save, records); err != nil {
					return err
				}
				opts.Logger.Info("Saved %d transactions as %s", len(records), save)
				if !withData {
					for _, rec := range records {
						rec.Data = nil
					}
				}
			}
			return output.NewPrinter(cmd.OutOrStdout(), format).Print(records)
		},
	}
	filterOpts.AddFlags(cmd)
	cmd.Flags().StringVarP(&outputFormat, OutputOptionName, "o", "table", fmt.Sprintf("Output format. %s", output.HelpFormats))
	cmd.Flags().StringVar(&save, SaveOptionName, "", "Save the transactions in the local database under this name")
	cmd.Flags().BoolVar(&withData, DataOptionName, false, "Include data stage payloads in the output")
	return cmd
}

func saveRecords(cfg *config.Config, name string, records []*scsi.Record) error {
	state, err := store.NewState(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer state.Close()
	return state.SaveCapture(name, records)
}

func NewEndpointsCommand(cfg *config.Config) *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:   "endpoints FILE",
		Short: "Show the traffic of every endpoint in a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			summaries, err := trace.Endpoints(args[0], pkgcmd.Logger(cmd))
			if err != nil {
				return err
			}
			return output.NewPrinter(cmd.OutOrStdout(), format).Print(output.Endpoints(summaries))
		},
	}
	cmd.Flags().StringVarP(&outputFormat, OutputOptionName, "o", "table", fmt.Sprintf("Output format. %s", output.HelpFormats))
	return cmd
}
