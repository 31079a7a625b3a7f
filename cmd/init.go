// protogen init [name], protogen new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/protogen-build/protogen/internal/msg"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "protogen"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn scaffolds a project in an existing specified directory
func initIn(dir, name string) {
	// protogen.toml
	writefile(`[package]
name = "`+name+`"

# extra --proto_path entries, e.g. a vendored well-known-types directory
include = []

[[group]]
name = "`+name+`"
input = ["proto/`+name+`.proto"]
output = ["gen"]
cache = ".protogen/`+name+`.json"
`, dir, "protogen.toml")

	mkdir(dir, "proto")

	// proto/<name>.proto
	writefile(`syntax = "proto3";

package `+name+`;

message Hello {
  string greeting = 1;
}
`, dir, "proto", name+".proto")

	// .gitignore
	writefile(`.protogen/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to generate code for your schemas.\n", color.HiCyanString(programName+" "+dir))
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new project in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0])
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]))
	},
}

func init() {
	// protogen init subcommand
	rootCmd.AddCommand(initCmd)

	// protogen new subcommand
	rootCmd.AddCommand(newCmd)
}
