package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect pricing catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a catalog file and print its size and fingerprint",
	Long: `Loads a catalog YAML file (or the built-in catalog when no path is given)
and reports whether the server would accept it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogValidate,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print a catalog as it appears in /analyze responses",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogShow,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	cat, source, err := loadCatalog(optionalArg(args))
	if err != nil {
		return err
	}
	fingerprint, err := cat.Fingerprint()
	if err != nil {
		return err
	}

	categories, methods, materials := cat.Counts()
	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"%s: ok\n  categories: %d\n  methods:    %d\n  materials:  %d\n  defaults:   %s/%s\n  fingerprint: %s\n",
		source, categories, methods, materials, cat.Defaults.Method, cat.Defaults.Material, fingerprint)
	return err
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	cat, _, err := loadCatalog(optionalArg(args))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"structure": cat,
		"defaults":  cat.Defaults,
	})
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
