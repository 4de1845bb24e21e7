package main

import (
	"errors"
	"fmt"

	"github.com/Simplici0/meshquote/internal/catalog"
	"github.com/Simplici0/meshquote/internal/geometry"
	"github.com/Simplici0/meshquote/internal/meshio"
	"github.com/Simplici0/meshquote/internal/pricing"
)

type dimensions struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type geometryResult struct {
	VolumeCM3    float64             `json:"volume_cm3"`
	DimensionsMM dimensions          `json:"dimensions_mm"`
	VolumeMethod geometry.Method     `json:"volume_method"`
	Confidence   geometry.Confidence `json:"confidence"`
	Rescaled     bool                `json:"rescaled"`
}

// analysis is the /analyze response body.
type analysis struct {
	Filename   string           `json:"filename"`
	Geometry   geometryResult   `json:"geometry"`
	Estimates  pricing.Matrix   `json:"estimates"`
	Structure  *catalog.Catalog `json:"structure"`
	Defaults   catalog.Defaults `json:"defaults"`
	FileURL    string           `json:"file_url,omitempty"`
	PreviewURL string           `json:"preview_url,omitempty"`
}

// analyzer turns uploaded bytes into a priced analysis.
type analyzer struct {
	registry *meshio.Registry
	catalog  *catalog.Catalog
	options  geometry.Options
}

// measured is an analysis plus the decoded mesh in millimetres.
type measured struct {
	analysis analysis
	summary  geometry.Summary
	mesh     *geometry.Mesh
}

func (a *analyzer) analyze(filename, ext string, data []byte) (measured, error) {
	mesh, err := a.registry.Decode(ext, data)
	if err != nil {
		return measured{}, fmt.Errorf("decode %s: %w", filename, err)
	}

	summary := geometry.Estimate(mesh, a.options)
	if summary.Rescaled {
		mesh = mesh.Scaled(a.options.MeterScale)
	}

	return measured{
		analysis: analysis{
			Filename: filename,
			Geometry: geometryResult{
				VolumeCM3: pricing.Round(summary.VolumeCM3, 2),
				DimensionsMM: dimensions{
					X: pricing.Round(summary.ExtentsMM[0], 1),
					Y: pricing.Round(summary.ExtentsMM[1], 1),
					Z: pricing.Round(summary.ExtentsMM[2], 1),
				},
				VolumeMethod: summary.Method,
				Confidence:   summary.Confidence,
				Rescaled:     summary.Rescaled,
			},
			Estimates: pricing.Build(summary.VolumeCM3, a.catalog),
			Structure: a.catalog,
			Defaults:  a.catalog.Defaults,
		},
		summary: summary,
		mesh:    mesh,
	}, nil
}

// clientMessage is the text returned in {"error": ...} bodies. Internal
// details stay in the logs.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, meshio.ErrEmptyModel):
		return "Analysis failed: the model contains no geometry."
	case errors.Is(err, meshio.ErrDecode):
		return "Analysis failed: the model file could not be read."
	default:
		return "Analysis failed."
	}
}
