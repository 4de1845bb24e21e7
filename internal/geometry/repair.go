package geometry

import "math"

// MergeVertices welds vertices closer than tol along every axis and drops
// faces that collapse to a line or point after welding. STL files carry one
// copy of each vertex per triangle, so this is what makes edge sharing
// visible to IsWatertight.
func MergeVertices(m *Mesh, tol float64) *Mesh {
	if m == nil {
		return &Mesh{}
	}
	if tol <= 0 {
		tol = 1e-9
	}

	type key [3]int64
	index := make(map[key]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	out := &Mesh{Vertices: make([]Vec3, 0, len(m.Vertices))}

	for i, v := range m.Vertices {
		k := key{
			int64(math.Round(v[0] / tol)),
			int64(math.Round(v[1] / tol)),
			int64(math.Round(v[2] / tol)),
		}
		if j, ok := index[k]; ok {
			remap[i] = j
			continue
		}
		index[k] = len(out.Vertices)
		remap[i] = len(out.Vertices)
		out.Vertices = append(out.Vertices, v)
	}

	out.Faces = make([]Face, 0, len(m.Faces))
	for _, f := range m.Faces {
		if !validFace(f, len(remap)) {
			continue
		}
		a, b, c := remap[f[0]], remap[f[1]], remap[f[2]]
		if a == b || b == c || a == c {
			continue
		}
		out.Faces = append(out.Faces, Face{a, b, c})
	}
	return out
}

func validFace(f Face, n int) bool {
	for _, i := range f {
		if i < 0 || i >= n {
			return false
		}
	}
	return true
}
