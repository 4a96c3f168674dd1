package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/output"
	"github.com/telekom/itsmctl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show itsmctl version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if short {
				printf(rt, "%s\n", info.Version)
				return nil
			}
			return renderObject(rt, info, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "itsmctl", Value: info.String()},
					{Key: "Commit", Value: info.GitCommit},
					{Key: "Built", Value: info.BuildDate},
					{Key: "Go", Value: info.GoVersion},
				})
			})
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
