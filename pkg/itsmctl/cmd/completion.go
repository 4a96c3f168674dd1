package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

type completionGenerator func(root *cobra.Command, w io.Writer, descriptions bool) error

var completionShells = map[string]completionGenerator{
	"bash": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		return root.GenBashCompletionV2(w, descriptions)
	},
	"zsh": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		if descriptions {
			return root.GenZshCompletion(w)
		}
		return root.GenZshCompletionNoDesc(w)
	},
	"fish": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		return root.GenFishCompletion(w, descriptions)
	},
	"powershell": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		if descriptions {
			return root.GenPowerShellCompletionWithDesc(w)
		}
		return root.GenPowerShellCompletion(w)
	},
}

func shellNames() []string {
	names := make([]string, 0, len(completionShells))
	for name := range completionShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCompletionCommand prints the completion script for one shell. Source it
// from the shell profile, e.g. `source <(itsmctl completion bash)`.
func NewCompletionCommand() *cobra.Command {
	var noDescriptions bool
	shells := shellNames()
	cmd := &cobra.Command{
		Use:       fmt.Sprintf("completion [%s]", strings.Join(shells, "|")),
		Short:     "Generate shell completion",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shells,
		RunE: func(cmd *cobra.Command, args []string) error {
			generate, ok := completionShells[args[0]]
			if !ok {
				return fmt.Errorf("unsupported shell: %s (one of %s)", args[0], strings.Join(shells, ", "))
			}
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return generate(cmd.Root(), rt.Writer(), !noDescriptions)
		},
	}
	cmd.Flags().BoolVar(&noDescriptions, "no-descriptions", false, "Omit command descriptions from completions")
	return cmd
}
