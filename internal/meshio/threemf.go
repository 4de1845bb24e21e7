package meshio

import (
	"bytes"
	"fmt"

	"github.com/hpinc/go3mf"

	"github.com/Simplici0/meshquote/internal/geometry"
)

const (
	threeMFMaxDepth = 32

	// Build items and components may instance stored geometry. The
	// flattened mesh is capped relative to what the package actually stores.
	threeMFInstanceFactor = 256
	threeMFMinBudget      = 1 << 16
	threeMFMaxBudget      = 1 << 24
)

var unitScale = map[go3mf.Units]float64{
	go3mf.UnitMicrometer: 0.001,
	go3mf.UnitMillimeter: 1,
	go3mf.UnitCentimeter: 10,
	go3mf.UnitInch:       25.4,
	go3mf.UnitFoot:       304.8,
	go3mf.UnitMeter:      1000,
}

// Decode3MF reads the root model of a 3MF package. Build items and
// components are flattened into one mesh with their transforms applied and
// coordinates converted to millimetres.
func Decode3MF(data []byte) (*geometry.Mesh, error) {
	var model go3mf.Model
	if err := go3mf.NewDecoder(bytes.NewReader(data), int64(len(data))).Decode(&model); err != nil {
		return nil, fmt.Errorf("parse 3mf package: %w", err)
	}

	scale, ok := unitScale[model.Units]
	if !ok {
		return nil, fmt.Errorf("unknown 3mf unit %v", model.Units)
	}

	f := &flattener{
		objects: make(map[uint32]*go3mf.Object, len(model.Resources.Objects)),
		sizes:   make(map[uint32]int64),
	}
	var stored int64
	for _, o := range model.Resources.Objects {
		f.objects[o.ID] = o
		stored += ownSize(o)
	}
	f.budget = min(max(stored*threeMFInstanceFactor, threeMFMinBudget), threeMFMaxBudget)

	items := model.Build.Items
	if len(items) == 0 {
		for _, o := range model.Resources.Objects {
			items = append(items, &go3mf.Item{ObjectID: o.ID})
		}
	}

	var total int64
	for _, item := range items {
		n, err := f.size(item.ObjectID, 0)
		if err != nil {
			return nil, err
		}
		total += n
		if total > f.budget {
			return nil, f.overBudget()
		}
	}

	var parts []*geometry.Mesh
	for _, item := range items {
		got, err := f.flatten(item.ObjectID, fromMatrix(item.Transform), 0)
		if err != nil {
			return nil, err
		}
		parts = append(parts, got...)
	}

	m := geometry.Concatenate(parts...)
	if scale != 1 {
		m = m.Scaled(scale)
	}
	return m, nil
}

// flattener resolves object references within one model.
type flattener struct {
	objects map[uint32]*go3mf.Object
	sizes   map[uint32]int64
	budget  int64
}

func (f *flattener) overBudget() error {
	return fmt.Errorf("3mf expands to more than %d vertices and triangles", f.budget)
}

func (f *flattener) lookup(id uint32, depth int) (*go3mf.Object, error) {
	if depth > threeMFMaxDepth {
		return nil, fmt.Errorf("3mf components nested deeper than %d", threeMFMaxDepth)
	}
	o, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("3mf references unknown object %d", id)
	}
	return o, nil
}

// size counts the vertices and triangles object id expands to without
// building them. Results are memoized, so shared sub-assemblies are counted
// once no matter how often they are referenced.
func (f *flattener) size(id uint32, depth int) (int64, error) {
	if n, ok := f.sizes[id]; ok {
		return n, nil
	}
	o, err := f.lookup(id, depth)
	if err != nil {
		return 0, err
	}

	n := ownSize(o)
	if o.Components != nil {
		for _, c := range o.Components.Component {
			sub, err := f.size(c.ObjectID, depth+1)
			if err != nil {
				return 0, err
			}
			n += sub
			if n > f.budget {
				return 0, f.overBudget()
			}
		}
	}
	f.sizes[id] = n
	return n, nil
}

func (f *flattener) flatten(id uint32, t transform, depth int) ([]*geometry.Mesh, error) {
	o, err := f.lookup(id, depth)
	if err != nil {
		return nil, err
	}

	var parts []*geometry.Mesh
	if o.Mesh != nil && len(o.Mesh.Triangles.Triangle) > 0 {
		src := o.Mesh
		m := &geometry.Mesh{
			Vertices: make([]geometry.Vec3, 0, len(src.Vertices.Vertex)),
			Faces:    make([]geometry.Face, 0, len(src.Triangles.Triangle)),
		}
		for _, v := range src.Vertices.Vertex {
			m.Vertices = append(m.Vertices, t.apply(geometry.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}))
		}
		n := uint32(len(m.Vertices))
		mirrored := t.determinant() < 0
		for _, tri := range src.Triangles.Triangle {
			if tri.V1 >= n || tri.V2 >= n || tri.V3 >= n {
				return nil, fmt.Errorf("3mf object %d: triangle index out of range (%d vertices)", id, n)
			}
			a, b, c := int(tri.V1), int(tri.V2), int(tri.V3)
			if mirrored {
				b, c = c, b
			}
			m.Faces = append(m.Faces, geometry.Face{a, b, c})
		}
		parts = append(parts, m)
	}

	if o.Components != nil {
		for _, c := range o.Components.Component {
			sub, err := f.flatten(c.ObjectID, fromMatrix(c.Transform).then(t), depth+1)
			if err != nil {
				return nil, err
			}
			parts = append(parts, sub...)
		}
	}
	return parts, nil
}

func ownSize(o *go3mf.Object) int64 {
	if o.Mesh == nil {
		return 0
	}
	return int64(len(o.Mesh.Vertices.Vertex) + len(o.Mesh.Triangles.Triangle))
}

// transform is a 3MF affine matrix in row-vector form: rows 0-2 hold the
// linear part and row 3 the translation.
type transform [4][3]float64

var identity = transform{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0, 0, 0}}

// fromMatrix converts a decoded 3MF matrix. A missing transform attribute
// decodes as the zero matrix and means identity.
func fromMatrix(m go3mf.Matrix) transform {
	if m == (go3mf.Matrix{}) {
		return identity
	}
	return transform{
		{float64(m[0]), float64(m[1]), float64(m[2])},
		{float64(m[4]), float64(m[5]), float64(m[6])},
		{float64(m[8]), float64(m[9]), float64(m[10])},
		{float64(m[12]), float64(m[13]), float64(m[14])},
	}
}

func (t transform) apply(v geometry.Vec3) geometry.Vec3 {
	var out geometry.Vec3
	for j := 0; j < 3; j++ {
		out[j] = v[0]*t[0][j] + v[1]*t[1][j] + v[2]*t[2][j] + t[3][j]
	}
	return out
}

// then returns the transform applying t first and outer second.
func (t transform) then(outer transform) transform {
	var out transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			sum := t[i][0]*outer[0][j] + t[i][1]*outer[1][j] + t[i][2]*outer[2][j]
			if i == 3 {
				sum += outer[3][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func (t transform) determinant() float64 {
	return t[0][0]*(t[1][1]*t[2][2]-t[1][2]*t[2][1]) -
		t[0][1]*(t[1][0]*t[2][2]-t[1][2]*t[2][0]) +
		t[0][2]*(t[1][0]*t[2][1]-t[1][1]*t[2][0])
}
