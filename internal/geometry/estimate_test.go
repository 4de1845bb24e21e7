package geometry

import (
	"errors"
	"math"
	"testing"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func cube(s float64) *Mesh {
	return &Mesh{
		Vertices: []Vec3{
			{0, 0, 0}, {s, 0, 0}, {s, s, 0}, {0, s, 0},
			{0, 0, s}, {s, 0, s}, {s, s, s}, {0, s, s},
		},
		Faces: []Face{
			{0, 2, 1}, {0, 3, 2},
			{4, 5, 6}, {4, 6, 7},
			{0, 1, 5}, {0, 5, 4},
			{3, 7, 6}, {3, 6, 2},
			{0, 4, 7}, {0, 7, 3},
			{1, 2, 6}, {1, 6, 5},
		},
	}
}

// soup expands a mesh into one vertex triple per face, as STL stores it.
func soup(m *Mesh) *Mesh {
	out := &Mesh{}
	for _, f := range m.Faces {
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]])
		out.Faces = append(out.Faces, Face{base, base + 1, base + 2})
	}
	return out
}

func openCylinder(segments int, r, h float64) *Mesh {
	m := &Mesh{}
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		m.Vertices = append(m.Vertices, Vec3{r * math.Cos(a), r * math.Sin(a), 0})
	}
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		m.Vertices = append(m.Vertices, Vec3{r * math.Cos(a), r * math.Sin(a), h})
	}
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		m.Faces = append(m.Faces,
			Face{i, j, segments + j},
			Face{i, segments + j, segments + i},
		)
	}
	return m
}

func TestEstimate_WatertightCubeIsExact(t *testing.T) {
	s := Estimate(cube(10), DefaultOptions())

	if s.VolumeCM3 != 1.0 {
		t.Fatalf("VolumeCM3 = %v, want exactly 1.0", s.VolumeCM3)
	}
	if s.Method != MethodWatertight || s.Confidence != ConfidenceExact {
		t.Fatalf("method=%s confidence=%s, want watertight/exact", s.Method, s.Confidence)
	}
	if s.ExtentsMM != (Vec3{10, 10, 10}) {
		t.Fatalf("ExtentsMM = %v", s.ExtentsMM)
	}
	if s.Rescaled {
		t.Fatalf("10mm cube must not be rescaled")
	}
}

func TestEstimate_TriangleSoupIsWeldedBeforeWatertightCheck(t *testing.T) {
	s := Estimate(soup(cube(20)), DefaultOptions())

	if s.Method != MethodWatertight {
		t.Fatalf("method = %s, want watertight", s.Method)
	}
	nearlyEqual(t, "VolumeCM3", s.VolumeCM3, 8)
}

func TestEstimate_InvertedWindingKeepsMagnitude(t *testing.T) {
	m := cube(10)
	for i, f := range m.Faces {
		m.Faces[i] = Face{f[0], f[2], f[1]}
	}

	s := Estimate(m, DefaultOptions())
	if s.Method != MethodWatertight || s.VolumeCM3 != 1.0 {
		t.Fatalf("got %s %v, want watertight 1.0", s.Method, s.VolumeCM3)
	}
}

func TestEstimate_OpenCylinderFallsBackToConvexHull(t *testing.T) {
	const n, r, h = 32, 10.0, 20.0
	s := Estimate(openCylinder(n, r, h), DefaultOptions())

	if s.Method != MethodConvexHull || s.Confidence != ConfidenceApproximate {
		t.Fatalf("method=%s confidence=%s, want convex_hull/approximate", s.Method, s.Confidence)
	}
	polygonArea := float64(n) / 2 * r * r * math.Sin(2*math.Pi/float64(n))
	nearlyEqual(t, "VolumeCM3", s.VolumeCM3, polygonArea*h/1000)

	if len(s.Attempts) != 2 || !errors.Is(s.Attempts[0].Err, ErrNotWatertight) {
		t.Fatalf("expected failed watertight attempt before hull, got %+v", s.Attempts)
	}
}

func TestEstimate_SubThresholdModelIsRescaledFromMeters(t *testing.T) {
	small := Estimate(cube(1.5), DefaultOptions())
	large := Estimate(cube(1500), DefaultOptions())

	if !small.Rescaled {
		t.Fatalf("expected 1.5 unit model to be rescaled")
	}
	if small.VolumeCM3 != large.VolumeCM3 {
		t.Fatalf("rescaled volume = %v, want %v", small.VolumeCM3, large.VolumeCM3)
	}
	if small.ExtentsMM != (Vec3{1500, 1500, 1500}) {
		t.Fatalf("rescaled extents = %v", small.ExtentsMM)
	}
}

func TestEstimate_ThresholdIsConfigurable(t *testing.T) {
	opts := DefaultOptions()
	opts.MeterThreshold = 1.0

	s := Estimate(cube(1.5), opts)
	if s.Rescaled {
		t.Fatalf("model above the configured threshold must not be rescaled")
	}
	nearlyEqual(t, "VolumeCM3", s.VolumeCM3, 1.5*1.5*1.5/1000)
}

func TestEstimate_FlatGeometryUsesBoundingBoxFactor(t *testing.T) {
	square := &Mesh{
		Vertices: []Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0}},
		Faces:    []Face{{0, 1, 2}, {0, 2, 3}},
	}

	s := Estimate(square, DefaultOptions())
	if s.Method != MethodBoundingBox || s.Confidence != ConfidenceLow {
		t.Fatalf("method=%s confidence=%s, want bounding_box/low", s.Method, s.Confidence)
	}
	if s.VolumeCM3 != 0 {
		t.Fatalf("VolumeCM3 = %v, want 0 for a flat model", s.VolumeCM3)
	}
}

func TestEstimate_BoundingBoxFactorAppliesWhenHullFails(t *testing.T) {
	tri := &Mesh{
		Vertices: []Vec3{{0, 0, 0}, {10, 0, 5}, {0, 20, 5}},
		Faces:    []Face{{0, 1, 2}},
	}
	opts := DefaultOptions()
	opts.BoundingBoxFactor = 0.25

	s := Estimate(tri, opts)
	if s.Method != MethodBoundingBox {
		t.Fatalf("method = %s, want bounding_box", s.Method)
	}
	nearlyEqual(t, "VolumeCM3", s.VolumeCM3, 0.25*10*20*5/1000)
}

func TestEstimate_NilAndEmptyMeshNeverPanic(t *testing.T) {
	for name, m := range map[string]*Mesh{"nil": nil, "empty": {}} {
		s := Estimate(m, DefaultOptions())
		if s.VolumeCM3 != 0 || s.ExtentsMM != (Vec3{}) {
			t.Fatalf("%s: got %+v, want zero summary", name, s)
		}
		if s.Method != MethodBoundingBox {
			t.Fatalf("%s: method = %s, want bounding_box", name, s.Method)
		}
	}
}

func TestIsWatertight_OpenBoxIsNotWatertight(t *testing.T) {
	m := cube(10)
	m.Faces = m.Faces[2:]

	if IsWatertight(m) {
		t.Fatalf("cube with a missing side reported watertight")
	}
}

func TestMergeVertices_DropsCollapsedFaces(t *testing.T) {
	m := &Mesh{
		Vertices: []Vec3{{0, 0, 0}, {0, 0, 1e-12}, {1, 0, 0}, {0, 1, 0}},
		Faces:    []Face{{0, 1, 2}, {0, 2, 3}, {0, 2, 9}},
	}

	out := MergeVertices(m, 1e-6)
	if len(out.Vertices) != 3 {
		t.Fatalf("vertices = %d, want 3", len(out.Vertices))
	}
	if len(out.Faces) != 1 {
		t.Fatalf("faces = %d, want 1", len(out.Faces))
	}
}
