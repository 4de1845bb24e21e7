package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid catalog")

// Material is one orderable material of a Method.
type Material struct {
	Key         string
	Name        string
	Description string
	// Rate is the price per cm³ of charged volume.
	Rate float64
}

// Method is a manufacturing technology.
type Method struct {
	Key        string
	Name       string
	StartupFee float64
	// VolumeFactor converts part volume into charged volume: below 1 for
	// processes billed on consumed material, above 1 for stock blanks.
	VolumeFactor float64
	Materials    []Material
}

// Category groups methods for display.
type Category struct {
	Key     string
	Label   string
	Methods []Method
}

// Defaults is the method/material pair a client pre-selects.
type Defaults struct {
	Method   string `json:"tech"`
	Material string `json:"mat"`
}

// Catalog is the immutable pricing table. Slices keep declaration order so
// every traversal is deterministic.
type Catalog struct {
	Categories []Category
	Defaults   Defaults
}

// Method finds a method by key across all categories.
func (c *Catalog) Method(key string) (Method, bool) {
	for _, cat := range c.Categories {
		for _, m := range cat.Methods {
			if m.Key == key {
				return m, true
			}
		}
	}
	return Method{}, false
}

// Material finds a material by key within the method.
func (m Method) Material(key string) (Material, bool) {
	for _, mat := range m.Materials {
		if mat.Key == key {
			return mat, true
		}
	}
	return Material{}, false
}

// Resolve looks up a (method, material) pair.
func (c *Catalog) Resolve(method, material string) (Method, Material, bool) {
	m, ok := c.Method(method)
	if !ok {
		return Method{}, Material{}, false
	}
	mat, ok := m.Material(material)
	if !ok {
		return Method{}, Material{}, false
	}
	return m, mat, true
}

// Counts returns the number of categories, methods and materials.
func (c *Catalog) Counts() (categories, methods, materials int) {
	categories = len(c.Categories)
	for _, cat := range c.Categories {
		methods += len(cat.Methods)
		for _, m := range cat.Methods {
			materials += len(m.Materials)
		}
	}
	return categories, methods, materials
}

// Validate requires non-empty levels, unique keys,
// finite non-negative numbers and resolvable defaults. Method keys must be
// unique across categories because quotes are keyed by method alone.
func (c *Catalog) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Categories) == 0 {
		fail("catalog has no categories")
	}

	categories := make(map[string]bool)
	methods := make(map[string]string)
	for _, cat := range c.Categories {
		if cat.Key == "" {
			fail("category with empty key")
		}
		if categories[cat.Key] {
			fail("duplicate category %q", cat.Key)
		}
		categories[cat.Key] = true
		if len(cat.Methods) == 0 {
			fail("category %q has no methods", cat.Key)
		}

		for _, m := range cat.Methods {
			if m.Key == "" {
				fail("category %q: method with empty key", cat.Key)
			}
			if other, ok := methods[m.Key]; ok {
				fail("method %q declared in %q and %q", m.Key, other, cat.Key)
			}
			methods[m.Key] = cat.Key
			if !nonNegative(m.StartupFee) {
				fail("method %q: startup_fee must be a non-negative number, got %v", m.Key, m.StartupFee)
			}
			if !nonNegative(m.VolumeFactor) {
				fail("method %q: volume_factor must be a non-negative number, got %v", m.Key, m.VolumeFactor)
			}
			if len(m.Materials) == 0 {
				fail("method %q has no materials", m.Key)
			}

			materials := make(map[string]bool)
			for _, mat := range m.Materials {
				if mat.Key == "" {
					fail("method %q: material with empty key", m.Key)
				}
				if materials[mat.Key] {
					fail("method %q: duplicate material %q", m.Key, mat.Key)
				}
				materials[mat.Key] = true
				if !nonNegative(mat.Rate) {
					fail("material %s/%s: rate must be a non-negative number, got %v", m.Key, mat.Key, mat.Rate)
				}
			}
		}
	}

	if len(errs) == 0 {
		if _, _, ok := c.Resolve(c.Defaults.Method, c.Defaults.Material); !ok {
			fail("defaults %s/%s do not resolve", c.Defaults.Method, c.Defaults.Material)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

type materialJSON struct {
	Name        string  `json:"name"`
	Rate        float64 `json:"rate"`
	Description string  `json:"description"`
}

type methodJSON struct {
	Name         string                                       `json:"name"`
	StartupFee   float64                                      `json:"startup_fee"`
	VolumeFactor float64                                      `json:"volume_factor"`
	Materials    *orderedmap.OrderedMap[string, materialJSON] `json:"materials"`
}

type categoryJSON struct {
	Label   string                                     `json:"label"`
	Methods *orderedmap.OrderedMap[string, methodJSON] `json:"methods"`
}

// MarshalJSON renders the catalog as nested objects keyed by category,
// method and material, in declaration order.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, categoryJSON]()
	for _, cat := range c.Categories {
		methods := orderedmap.New[string, methodJSON]()
		for _, m := range cat.Methods {
			materials := orderedmap.New[string, materialJSON]()
			for _, mat := range m.Materials {
				materials.Set(mat.Key, materialJSON{Name: mat.Name, Rate: mat.Rate, Description: mat.Description})
			}
			methods.Set(m.Key, methodJSON{
				Name:         m.Name,
				StartupFee:   m.StartupFee,
				VolumeFactor: m.VolumeFactor,
				Materials:    materials,
			})
		}
		out.Set(cat.Key, categoryJSON{Label: cat.Label, Methods: methods})
	}
	return json.Marshal(out)
}

// Fingerprint identifies the catalog content, including defaults. Two
// catalogs with the same fingerprint price identically.
func (c *Catalog) Fingerprint() (string, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal catalog: %w", err)
	}
	sum := sha256.New()
	sum.Write(body)
	sum.Write([]byte("\x00" + c.Defaults.Method + "\x00" + c.Defaults.Material))
	return hex.EncodeToString(sum.Sum(nil)), nil
}
