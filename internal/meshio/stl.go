package meshio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hschendel/stl"

	"github.com/Simplici0/meshquote/internal/geometry"
)

const (
	stlHeaderSize   = 84
	stlTriangleSize = 50
)

// DecodeSTL reads ASCII or binary STL. The result is a triangle soup with
// three vertices per face; geometry.MergeVertices welds it.
func DecodeSTL(data []byte) (*geometry.Mesh, error) {
	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}

	m := &geometry.Mesh{
		Vertices: make([]geometry.Vec3, 0, len(solid.Triangles)*3),
		Faces:    make([]geometry.Face, 0, len(solid.Triangles)),
	}
	for _, t := range solid.Triangles {
		base := len(m.Vertices)
		for _, v := range t.Vertices {
			m.Vertices = append(m.Vertices, geometry.Vec3{float64(v[0]), float64(v[1]), float64(v[2])})
		}
		m.Faces = append(m.Faces, geometry.Face{base, base + 1, base + 2})
	}
	return m, nil
}

// isBinarySTL matches the triangle count in the header against the size.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize {
		return false
	}
	n := binary.LittleEndian.Uint32(data[80:84])
	return int64(len(data)) == stlHeaderSize+int64(n)*stlTriangleSize
}
