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

package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	completionExample = `
Save shell completion to a file
# usbtrace completion > $HOME/.usbtrace_completions

Apply completions to the current bash instance
# source <(usbtrace completion)

Zsh completion
# usbtrace completion --shell zsh > "${fpath[1]}/_usbtrace"
`
	ShellOptionName = "shell"
)

// NewCommand creates a cobra command object for generating completion scripts
func NewCommand() *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:     "completion",
		Short:   "Generate completion script for bash or zsh",
		Example: completionExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch shell {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			}
			return fmt.Errorf("Unsupported shell %q. Must be one of: bash, zsh.", shell)
		},
	}
	cmd.Flags().StringVar(&shell, ShellOptionName, "bash", "Shell to generate the script for")
	return cmd
}
