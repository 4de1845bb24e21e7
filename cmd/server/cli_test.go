package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplici0/meshquote/internal/catalog"
	"github.com/Simplici0/meshquote/internal/db"
	"github.com/Simplici0/meshquote/internal/leads"
	"github.com/Simplici0/meshquote/internal/migrations"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCLI_CatalogValidateBuiltIn(t *testing.T) {
	out, err := runCLI(t, "catalog", "validate")
	if err != nil {
		t.Fatalf("catalog validate: %v\n%s", err, out)
	}
	for _, want := range []string{"embedded: ok", "categories: 3", "methods:    13", "materials:  38", "defaults:   sls/pa12_white"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_CatalogValidateRejectsBadFile(t *testing.T) {
	path := writeTemp(t, "catalog.yaml", []byte("categories: {}\n"))

	if _, err := runCLI(t, "catalog", "validate", path); err == nil {
		t.Fatalf("expected an error for a catalog without methods")
	}
}

func TestCLI_CatalogShowPrintsStructure(t *testing.T) {
	out, err := runCLI(t, "catalog", "show")
	if err != nil {
		t.Fatalf("catalog show: %v", err)
	}

	var got struct {
		Structure map[string]json.RawMessage `json:"structure"`
		Defaults  map[string]string          `json:"defaults"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(got.Structure) != 3 || got.Defaults["tech"] != "sls" {
		t.Fatalf("unexpected catalog output: %+v", got)
	}
}

func TestCLI_QuoteSingleLine(t *testing.T) {
	path := writeTemp(t, "cube.stl", cubeSTL(t, 10))

	out, err := runCLI(t, "quote", path, "--method=sls", "--material=pa12_white")
	if err != nil {
		t.Fatalf("quote: %v\n%s", err, out)
	}
	want := "cube.stl\tSLS (Selective Laser Sintering) / PA12 (White)\t1.00 cm³\t30.70\n"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestCLI_QuoteFullAnalysis(t *testing.T) {
	path := writeTemp(t, "cube.stl", cubeSTL(t, 10))

	out, err := runCLI(t, "quote", path, "--method=", "--material=")
	if err != nil {
		t.Fatalf("quote: %v\n%s", err, out)
	}

	var got analyzeResponse
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if got.Geometry.VolumeCM3 != 1 || got.Estimates["sls"]["pa12_white"].UnitPrice != 30.7 {
		t.Fatalf("unexpected analysis: %+v", got.Geometry)
	}
	if got.FileURL != "" || got.PreviewURL != "" {
		t.Fatalf("CLI analysis should not carry preview URLs")
	}
}

func TestCLI_QuoteRejectsUnknownPair(t *testing.T) {
	path := writeTemp(t, "cube.stl", cubeSTL(t, 10))

	if _, err := runCLI(t, "quote", path, "--method=sls", "--material=unobtainium"); err == nil {
		t.Fatalf("expected an error for an unknown material")
	}
	if _, err := runCLI(t, "quote", path, "--method=sls", "--material="); err == nil {
		t.Fatalf("expected an error when --material is missing")
	}
}

func TestCLI_QuoteHelpMatchesBuiltInCatalog(t *testing.T) {
	usage := quoteCmd.Flags().Lookup("meter-threshold").Usage
	if !strings.Contains(usage, "largest bounding-box extent") || strings.Contains(usage, "mm³") {
		t.Fatalf("--meter-threshold usage describes the wrong quantity: %q", usage)
	}

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	if _, _, ok := cat.Resolve("sls", "pa12_white"); !ok || !strings.Contains(quoteCmd.Long, "--method=sls --material=pa12_white") {
		t.Fatalf("quote example does not use a built-in method/material pair")
	}
}

func TestCLI_LeadsListsStoredRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := migrations.Up(ctx, database, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := leads.NewSQLiteStore(database)
	for i, name := range []string{"Older", "Newer"} {
		err := store.Deliver(ctx, leads.Lead{
			ID:             name,
			ReceivedAt:     fixedNow.Add(time.Duration(i) * time.Hour),
			Filename:       "cube.stl",
			Technology:     "sls",
			Material:       "pa12_white",
			Finish:         "standard",
			Delivery:       "normal",
			Quantity:       1,
			EstimatedPrice: 30.7,
			Name:           name,
			Email:          strings.ToLower(name) + "@example.com",
			Phone:          "123",
		})
		if err != nil {
			t.Fatalf("deliver %s: %v", name, err)
		}
	}

	out, err := runCLI(t, "leads", "--db="+path, "--limit=1")
	if err != nil {
		t.Fatalf("leads: %v\n%s", err, out)
	}
	if !strings.Contains(out, "newer@example.com") || strings.Contains(out, "older@example.com") {
		t.Fatalf("expected only the newest request:\n%s", out)
	}
	if !strings.Contains(out, "sls/pa12_white") {
		t.Fatalf("missing method/material column:\n%s", out)
	}
}
