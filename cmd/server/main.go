// meshquote is the quoting backend for custom manufacturing: it measures
// uploaded 3D models and prices them against a catalog of methods and
// materials.
//
// Usage:
//
//	meshquote [serve]
//	meshquote quote <model-file> [--catalog=<path>] [--method=<key> --material=<key>]
//	meshquote catalog validate|show [path]
//	meshquote leads [--limit=<n>]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "meshquote",
	Short: "Instant quotes for 3D printing, casting and machining",
	Long: "meshquote measures uploaded STL, OBJ and 3MF models and prices them\n" +
		"for every manufacturing method and material in its catalog.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
