package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Simplici0/meshquote/internal/geometry"
	"github.com/Simplici0/meshquote/internal/meshio"
	"github.com/Simplici0/meshquote/internal/pricing"
)

var quoteFlags struct {
	catalogPath string
	method      string
	material    string
	meterThresh float64
}

var quoteCmd = &cobra.Command{
	Use:   "quote <model-file>",
	Short: "Measure a model file and print its price matrix",
	Long: `Runs the same analysis as POST /analyze on a local file and prints the
response body as indented JSON.

With --method and --material only that line is printed:
  meshquote quote bracket.stl --method=sls --material=pa12_white`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

func init() {
	f := quoteCmd.Flags()
	f.StringVar(&quoteFlags.catalogPath, "catalog", "", "Catalog YAML path (default: built-in catalog)")
	f.StringVar(&quoteFlags.method, "method", "", "Print only this method's line (requires --material)")
	f.StringVar(&quoteFlags.material, "material", "", "Print only this material's line (requires --method)")
	f.Float64Var(&quoteFlags.meterThresh, "meter-threshold", geometry.DefaultOptions().MeterThreshold, "Treat models whose largest bounding-box extent is below this many file units as authored in metres")
}

func runQuote(cmd *cobra.Command, args []string) error {
	if (quoteFlags.method == "") != (quoteFlags.material == "") {
		return fmt.Errorf("--method and --material must be given together")
	}

	path := args[0]
	registry := meshio.NewRegistry(meshio.DefaultExtensions)
	ext, err := registry.CheckExtension(path)
	if err != nil {
		return err
	}

	cat, _, err := loadCatalog(quoteFlags.catalogPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}

	opts := geometry.DefaultOptions()
	opts.MeterThreshold = quoteFlags.meterThresh
	a := &analyzer{registry: registry, catalog: cat, options: opts}

	result, err := a.analyze(filepath.Base(path), ext, data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if quoteFlags.method != "" {
		line, ok := result.analysis.Estimates.Lookup(quoteFlags.method, quoteFlags.material)
		if !ok {
			return fmt.Errorf("no price for method %q with material %q", quoteFlags.method, quoteFlags.material)
		}
		_, err := fmt.Fprintf(out, "%s\t%s / %s\t%.2f cm³\t%.2f\n",
			result.analysis.Filename, line.TechName, line.Name,
			result.analysis.Geometry.VolumeCM3, pricing.Money(line.UnitPrice))
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result.analysis)
}
