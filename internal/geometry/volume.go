package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	quickhull "github.com/markus-wa/quickhull-go/v2"
)

var (
	// ErrNotWatertight is returned when exact volume is requested for an open
	// or inconsistently wound mesh.
	ErrNotWatertight = errors.New("mesh is not watertight")
	// ErrHullFailed is returned when no three-dimensional hull can be built.
	ErrHullFailed = errors.New("convex hull failed")
)

// flatHullRatio bounds hull volume relative to the cube of the largest
// extent; anything smaller is a planar point set with rounding noise.
const flatHullRatio = 1e-12

type edge struct{ a, b int }

// IsWatertight reports whether every edge is shared by exactly two faces
// that traverse it in opposite directions.
func IsWatertight(m *Mesh) bool {
	if m.Empty() {
		return false
	}

	directed := make(map[edge]int, len(m.Faces)*3)
	for _, f := range m.Faces {
		if !validFace(f, len(m.Vertices)) {
			return false
		}
		for i := 0; i < 3; i++ {
			directed[edge{f[i], f[(i+1)%3]}]++
		}
	}

	for e, n := range directed {
		if n != 1 {
			return false
		}
		if directed[edge{e.b, e.a}] != 1 {
			return false
		}
	}
	return true
}

// SignedVolume sums signed tetrahedra against the origin. For a closed,
// outward-wound mesh the result is its enclosed volume.
func SignedVolume(m *Mesh) float64 {
	var sum float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		sum += a.dot(b.cross(c))
	}
	return sum / 6
}

// WatertightVolume returns the enclosed volume of a closed mesh in its own
// cubic units. Inverted winding yields the same magnitude.
func WatertightVolume(m *Mesh) (float64, error) {
	if !IsWatertight(m) {
		return 0, ErrNotWatertight
	}
	return math.Abs(SignedVolume(m)), nil
}

// ConvexHullVolume returns the volume of the convex hull of the mesh's
// vertices. Planar or collinear point sets fail with ErrHullFailed.
func ConvexHullVolume(m *Mesh) (vol float64, err error) {
	if m == nil || len(m.Vertices) < 4 {
		return 0, fmt.Errorf("%w: need at least 4 vertices", ErrHullFailed)
	}

	defer func() {
		if r := recover(); r != nil {
			vol, err = 0, fmt.Errorf("%w: %v", ErrHullFailed, r)
		}
	}()

	cloud := make([]r3.Vector, len(m.Vertices))
	for i, v := range m.Vertices {
		cloud[i] = r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	}

	hull := new(quickhull.QuickHull).ConvexHull(cloud, true, false, 0)
	if len(hull.Indices) < 12 || len(hull.Vertices) < 4 {
		return 0, fmt.Errorf("%w: degenerate hull", ErrHullFailed)
	}

	// Tetrahedra from an interior point keep every term positive regardless
	// of the winding the hull reports.
	var centroid r3.Vector
	for _, v := range hull.Vertices {
		centroid = centroid.Add(v)
	}
	centroid = centroid.Mul(1 / float64(len(hull.Vertices)))

	for _, tri := range hull.Triangles() {
		a := tri[0].Sub(centroid)
		b := tri[1].Sub(centroid)
		c := tri[2].Sub(centroid)
		vol += math.Abs(a.Dot(b.Cross(c)))
	}
	vol /= 6

	ext := m.Extents()
	largest := math.Max(ext[0], math.Max(ext[1], ext[2]))
	if vol <= flatHullRatio*largest*largest*largest || math.IsNaN(vol) || math.IsInf(vol, 0) {
		return 0, fmt.Errorf("%w: zero hull volume", ErrHullFailed)
	}
	return vol, nil
}
