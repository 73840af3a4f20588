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

package capture

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/output"
	"github.com/c1728p9/usbtrace/pkg/store"
)

const (
	OutputOptionName = "output"
	DataOptionName   = "data"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Manage the analyses saved in the local database",
	}
	cmd.AddCommand(NewListCommand(cfg))
	cmd.AddCommand(NewShowCommand(cfg))
	cmd.AddCommand(NewDeleteCommand(cfg))
	return cmd
}

func withState(cfg *config.Config, fn func(state *store.State) error) error {
	state, err := store.NewState(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer state.Close()
	return fn(state)
}

func NewListCommand(cfg *config.Config) *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			return withState(cfg, func(state *store.State) error {
				names, err := state.ListCaptures()
				if err != nil {
					return err
				}
				return output.NewPrinter(cmd.OutOrStdout(), format).Print(output.Names(names))
			})
		},
	}
	cmd.Flags().StringVarP(&outputFormat, OutputOptionName, "o", "table", fmt.Sprintf("Output format. %s", output.HelpFormats))
	return cmd
}

func NewShowCommand(cfg *config.Config) *cobra.Command {
	var outputFormat string
	var withData bool
	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print the transactions of a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			return withState(cfg, func(state *store.State) error {
				records, err := state.LoadCapture(args[0])
				if err != nil {
					return err
				}
				if !withData {
					for _, rec := range records {
						rec.Data = nil
					}
				}
				return output.NewPrinter(cmd.OutOrStdout(), format).Print(output.Records(records))
			})
		},
	}
	cmd.Flags().StringVarP(&outputFormat, OutputOptionName, "o", "table", fmt.Sprintf("Output format. %s", output.HelpFormats))
	cmd.Flags().BoolVar(&withData, DataOptionName, false, "Include data stage payloads in the output")
	return cmd
}

func NewDeleteCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cfg, func(state *store.State) error {
				return state.DeleteCapture(args[0])
			})
		},
	}
	return cmd
}
