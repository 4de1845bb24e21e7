package meshio

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Simplici0/meshquote/internal/geometry"
)

// WriteGLB writes m as a single-primitive binary glTF 2.0 file.
func WriteGLB(w io.Writer, m *geometry.Mesh) error {
	if m.Empty() {
		return ErrEmptyModel
	}
	if uint64(len(m.Vertices)) > math.MaxUint32 {
		return errors.New("mesh too large for glb export")
	}

	positions := make([][3]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		positions[i] = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	indices := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		indices = append(indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "meshquote"
	position := modeler.WritePosition(doc, positions)
	index := modeler.WriteIndices(doc, indices)

	doc.Meshes = []*gltf.Mesh{{
		Name: "part",
		Primitives: []*gltf.Primitive{{
			Attributes: map[string]int{gltf.POSITION: position},
			Indices:    gltf.Index(index),
			Mode:       gltf.PrimitiveTriangles,
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: "part", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}
