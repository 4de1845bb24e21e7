package geometry

import "math"

// Vec3 is a point or extent in model space.
type Vec3 [3]float64

// Face indexes three vertices of a Mesh.
type Face [3]int

// Mesh is a triangulated solid. Vertices are in the unit of the source file
// until Estimate normalizes them to millimeters.
type Mesh struct {
	Vertices []Vec3
	Faces    []Face
}

// Empty reports whether the mesh has no usable triangles.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Vertices) == 0 || len(m.Faces) == 0
}

// Bounds returns the axis-aligned bounding box of the mesh.
// ok is false for a mesh without vertices.
func (m *Mesh) Bounds() (lo, hi Vec3, ok bool) {
	if m == nil || len(m.Vertices) == 0 {
		return Vec3{}, Vec3{}, false
	}

	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], v[i])
			hi[i] = math.Max(hi[i], v[i])
		}
	}
	return lo, hi, true
}

// Extents returns the size of the bounding box along x, y and z.
func (m *Mesh) Extents() Vec3 {
	lo, hi, ok := m.Bounds()
	if !ok {
		return Vec3{}
	}
	return Vec3{hi[0] - lo[0], hi[1] - lo[1], hi[2] - lo[2]}
}

// Scaled returns a copy of the mesh with every coordinate multiplied by f.
func (m *Mesh) Scaled(f float64) *Mesh {
	out := &Mesh{
		Vertices: make([]Vec3, len(m.Vertices)),
		Faces:    append([]Face(nil), m.Faces...),
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = Vec3{v[0] * f, v[1] * f, v[2] * f}
	}
	return out
}

// Concatenate joins several meshes into one, re-indexing faces.
// Nil meshes are skipped.
func Concatenate(meshes ...*Mesh) *Mesh {
	out := &Mesh{}
	for _, m := range meshes {
		if m == nil {
			continue
		}
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, f := range m.Faces {
			out.Faces = append(out.Faces, Face{f[0] + base, f[1] + base, f[2] + base})
		}
	}
	return out
}

// Finite reports whether every vertex coordinate is a finite number.
func (m *Mesh) Finite() bool {
	for _, v := range m.Vertices {
		for _, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return false
			}
		}
	}
	return true
}

func (a Vec3) sub(b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func (a Vec3) cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a Vec3) dot(b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
