// protogen clean [path]
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/protogen-build/protogen/internal/generator"
	"github.com/protogen-build/protogen/internal/msg"
)

var flagArtifacts bool

func doClean(cmd *cobra.Command, args []string) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	if err := generator.Clean(target, flagArtifacts); err != nil {
		msg.Fatal("%v", err)
	}
}

var cleanCmd = &cobra.Command{
	Use:   "clean [project path]",
	Short: "Remove cache state so the next run regenerates everything",
	Long:  `Remove every group's cache file. With --artifacts, also removes generated files from all configured output directories.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doClean,
}

func init() {
	// protogen clean subcommand
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVarP(&flagArtifacts, "artifacts", "a", false, "Also remove generated files from output directories")
}
