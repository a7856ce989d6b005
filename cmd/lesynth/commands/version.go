package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/lesynth/cmd/lesynth/internal/build"
	"github.com/haivivi/lesynth/pkg/cli"
)

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionOutput == "" {
			fmt.Fprintln(cmd.OutOrStdout(), build.String())
			return nil
		}
		format, err := cli.ParseFormat(versionOutput)
		if err != nil {
			return err
		}
		return cli.Output(build.Get(), cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

func init() {
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "", "output format: yaml or json")
}
