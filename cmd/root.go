// protogen [path], protogen gen [path]
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/protogen-build/protogen/internal/generator"
	"github.com/protogen-build/protogen/internal/msg"
)

var (
	flagForce        bool
	flagProtoc       string
	flagCorruptCache EnumValue = NewEnumValue("regen", map[string]string{
		"regen": "Treat a corrupt cache record as a miss and regenerate (default)",
		"fail":  "Abort the run when a cache record cannot be parsed",
	})
)

func doGenerate(cmd *cobra.Command, args []string) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	r, err := generator.NewRunnerInDirectory(target, flagProtoc)
	if err != nil {
		msg.Fatal("%v", err)
	}

	r.Force = flagForce
	if flagCorruptCache.Value() == "fail" {
		r.CorruptCache = generator.CorruptFail
	}

	if err := r.Run(); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "protogen [project path]",
	Short: "Incremental Protobuf code generation",
	Long:  `Drives protoc over configured schema groups, regenerating only when inputs changed and fanning artifacts out to every configured destination.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doGenerate,
}

var genCmd = &cobra.Command{
	Use:   "gen [project path]",
	Short: "Generate code for all groups",
	Long:  `Generate code for all groups. If no project path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doGenerate,
}

func init() {
	addGenFlags(rootCmd)

	// protogen gen subcommand
	rootCmd.AddCommand(genCmd)
	addGenFlags(genCmd)
}

func addGenFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Regenerate every group regardless of cache state")
	cmd.Flags().StringVar(&flagProtoc, "protoc", "", "Path to the protoc executable to use")
	cmd.Flags().Var(&flagCorruptCache, "corrupt-cache", "What a corrupt cache record does to the run, one of "+flagCorruptCache.HelpString())
	cmd.RegisterFlagCompletionFunc("corrupt-cache", flagCorruptCache.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
