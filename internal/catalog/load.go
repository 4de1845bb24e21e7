package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

const defaultVolumeFactor = 1.0

type fileDoc struct {
	Defaults struct {
		Method   string `yaml:"method"`
		Material string `yaml:"material"`
	} `yaml:"defaults"`
	Categories yaml.Node `yaml:"categories"`
}

type categoryDoc struct {
	Label   string    `yaml:"label"`
	Methods yaml.Node `yaml:"methods"`
}

type methodDoc struct {
	Name         string    `yaml:"name"`
	StartupFee   float64   `yaml:"startup_fee"`
	VolumeFactor *float64  `yaml:"volume_factor"`
	Materials    yaml.Node `yaml:"materials"`
}

type materialDoc struct {
	Name        string  `yaml:"name"`
	Rate        float64 `yaml:"rate"`
	Description string  `yaml:"description"`
}

// Keys accepted below the top level. yaml.Decoder.KnownFields only covers
// the document it decodes, not yaml.Node values decoded later.
var (
	categoryKeys = []string{"label", "methods"}
	methodKeys   = []string{"name", "startup_fee", "volume_factor", "materials"}
	materialKeys = []string{"name", "rate", "description"}
)

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultYAML))
}

// LoadFile reads and validates a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	cat, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// Load parses a YAML catalog. Mapping order in the document becomes the
// traversal order of the catalog. The result is validated.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalid, err)
	}

	cat := &Catalog{Defaults: Defaults{Method: doc.Defaults.Method, Material: doc.Defaults.Material}}

	err := eachEntry(&doc.Categories, "categories", func(key string, node *yaml.Node) error {
		var cd categoryDoc
		if err := decodeStrict(node, &cd, categoryKeys); err != nil {
			return fmt.Errorf("category %q: %w", key, err)
		}
		category := Category{Key: key, Label: cd.Label}

		err := eachEntry(&cd.Methods, "category "+key+" methods", func(key string, node *yaml.Node) error {
			method, err := decodeMethod(key, node)
			if err != nil {
				return err
			}
			category.Methods = append(category.Methods, method)
			return nil
		})
		if err != nil {
			return err
		}

		cat.Categories = append(cat.Categories, category)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func decodeMethod(key string, node *yaml.Node) (Method, error) {
	var md methodDoc
	if err := decodeStrict(node, &md, methodKeys); err != nil {
		return Method{}, fmt.Errorf("method %q: %w", key, err)
	}

	method := Method{
		Key:          key,
		Name:         md.Name,
		StartupFee:   md.StartupFee,
		VolumeFactor: defaultVolumeFactor,
	}
	if md.VolumeFactor != nil {
		method.VolumeFactor = *md.VolumeFactor
	}

	err := eachEntry(&md.Materials, "method "+key+" materials", func(matKey string, node *yaml.Node) error {
		var mat materialDoc
		if err := decodeStrict(node, &mat, materialKeys); err != nil {
			return fmt.Errorf("material %s/%s: %w", key, matKey, err)
		}
		method.Materials = append(method.Materials, Material{
			Key:         matKey,
			Name:        mat.Name,
			Description: mat.Description,
			Rate:        mat.Rate,
		})
		return nil
	})
	return method, err
}

// decodeStrict decodes a mapping node into v, rejecting keys outside known.
func decodeStrict(node *yaml.Node, v any, known []string) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			k := node.Content[i]
			if !slices.Contains(known, k.Value) {
				return fmt.Errorf("line %d: unknown field %q", k.Line, k.Value)
			}
		}
	}
	return node.Decode(v)
}

// eachEntry walks a YAML mapping in document order. A missing node is an
// empty mapping; Validate reports emptiness. Duplicate keys are rejected.
func eachEntry(node *yaml.Node, what string, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: line %d: expected a mapping", what, node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if seen[k.Value] {
			return fmt.Errorf("%s: line %d: duplicate key %q", what, k.Line, k.Value)
		}
		seen[k.Value] = true
		if err := fn(k.Value, v); err != nil {
			return err
		}
	}
	return nil
}
