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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c1728p9/usbtrace/pkg/capture"
	pkgcmd "github.com/c1728p9/usbtrace/pkg/cmd"
	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/image"
	"github.com/c1728p9/usbtrace/pkg/output"
)

const (
	BlockSizeOptionName      = "block-size"
	StopOnNotReadyOptionName = "stop-on-not-ready"
)

func NewImageCommand(cfg *config.Config) *cobra.Command {
	var blockSize int
	var stopOnNotReady bool
	filterOpts := &pkgcmd.FilterOptions{}
	cmd := &cobra.Command{
		Use:   "image FILE OUT",
		Short: "Write the blocks read from or written to the device into a raw image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := filterOpts.TraceOptions(cmd, cfg)
			if !cmd.Flags().Changed(BlockSizeOptionName) {
				blockSize = cfg.BlockSize
			}
			stats, err := image.Rebuild(args[0], args[1], opts, image.Options{
				BlockSize:      blockSize,
				StopOnNotReady: stopOnNotReady,
				Logger:         opts.Logger,
			})
			if err != nil {
				return err
			}
			return output.NewPrinter(cmd.OutOrStdout(), output.FormatYAML).Print(stats)
		},
	}
	filterOpts.AddFlags(cmd)
	cmd.Flags().IntVar(&blockSize, BlockSizeOptionName, config.DefaultBlockSize, "Logical block size of the device")
	cmd.Flags().BoolVar(&stopOnNotReady, StopOnNotReadyOptionName, false, "Stop at the first failed Test Unit Ready")
	return cmd
}

func NewExportCommand(cfg *config.Config) *cobra.Command {
	filterOpts := &pkgcmd.FilterOptions{}
	cmd := &cobra.Command{
		Use:   "export FILE OUT",
		Short: "Copy the transfers matching the filter into a new pcapng file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := filterOpts.Filter(cmd, cfg)
			logger := pkgcmd.Logger(cmd)
			reader, err := capture.Open(args[0], logger)
			if err != nil {
				return err
			}
			defer reader.Close()
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			count, err := capture.Export(out, filter.Apply(reader))
			if err != nil {
				if count == 0 {
					out.Close()
					os.Remove(args[1])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transfers matching %s\n", count, filter)
			return out.Close()
		},
	}
	filterOpts.AddFlags(cmd)
	return cmd
}
