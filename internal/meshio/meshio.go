// Package meshio turns uploaded model files into geometry.Mesh values and
// writes previews back out.
package meshio

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Simplici0/meshquote/internal/geometry"
)

var (
	// ErrUnsupportedFormat rejects a file by extension before decoding.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyModel is returned for files that decode to no triangles.
	ErrEmptyModel = errors.New("model contains no geometry")
	// ErrDecode is returned when no decoder can read the file.
	ErrDecode = errors.New("could not decode model")
)

// DecodeFunc reads one file format.
type DecodeFunc func(data []byte) (*geometry.Mesh, error)

// Registry maps accepted extensions to decoders.
type Registry struct {
	accepted map[string]bool
	decoders map[string]DecodeFunc
}

// DefaultExtensions are accepted when no list is configured.
var DefaultExtensions = []string{".stl", ".obj", ".3mf"}

// NewRegistry returns a registry accepting the given extensions (with or
// without the leading dot, any case). Extensions without a built-in decoder
// are accepted but fail at decode time.
func NewRegistry(accepted []string) *Registry {
	if len(accepted) == 0 {
		accepted = DefaultExtensions
	}

	r := &Registry{
		accepted: make(map[string]bool, len(accepted)),
		decoders: map[string]DecodeFunc{
			".stl": DecodeSTL,
			".obj": DecodeOBJ,
			".3mf": Decode3MF,
		},
	}
	for _, ext := range accepted {
		ext = normalizeExt(ext)
		if ext != "." {
			r.accepted[ext] = true
		}
	}
	return r
}

// Accepted lists the accepted extensions in a stable order.
func (r *Registry) Accepted() []string {
	var out []string
	for _, ext := range append(append([]string(nil), DefaultExtensions...), ".step", ".stp") {
		if r.accepted[ext] {
			out = append(out, ext)
		}
	}
	for ext := range r.accepted {
		if !contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}

// CheckExtension validates a filename and returns its normalized extension.
func (r *Registry) CheckExtension(filename string) (string, error) {
	ext := normalizeExt(filepath.Ext(filename))
	if ext == "." || !r.accepted[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	return ext, nil
}

// Decode parses data using the decoder for ext. When that fails the
// content is sniffed and a matching decoder for another format is tried.
func (r *Registry) Decode(ext string, data []byte) (*geometry.Mesh, error) {
	ext = normalizeExt(ext)
	if !r.accepted[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	var errs []error
	empty := false
	if primary, ok := r.decoders[ext]; ok {
		m, err := checked(primary(data))
		if err == nil {
			return m, nil
		}
		empty = errors.Is(err, ErrEmptyModel)
		errs = append(errs, fmt.Errorf("%s: %w", ext, err))
	} else {
		errs = append(errs, fmt.Errorf("%s: no decoder", ext))
	}

	if alt := Sniff(data); alt != "" && alt != ext {
		m, err := checked(r.decoders[alt](data))
		if err == nil {
			return m, nil
		}
		errs = append(errs, fmt.Errorf("%s (sniffed): %w", alt, err))
	}

	if empty {
		return nil, ErrEmptyModel
	}
	return nil, fmt.Errorf("%w: %w", ErrDecode, errors.Join(errs...))
}

// Sniff guesses the format of data from its content. It returns "" when
// the content matches no known format.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return ".3mf"
	case isBinarySTL(data):
		return ".stl"
	}

	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	text := strings.TrimSpace(string(head))
	switch {
	case strings.HasPrefix(text, "solid") && strings.Contains(text, "facet"):
		return ".stl"
	case looksLikeOBJ(text):
		return ".obj"
	}
	return ""
}

func checked(m *geometry.Mesh, err error) (*geometry.Mesh, error) {
	if err != nil {
		return nil, err
	}
	if m.Empty() {
		return nil, ErrEmptyModel
	}
	if !m.Finite() {
		return nil, errors.New("non-finite vertex coordinates")
	}
	return m, nil
}

func looksLikeOBJ(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "v ") || strings.HasPrefix(line, "f ") {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
