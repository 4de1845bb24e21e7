package geometry

import (
	"errors"
	"math"
)

// Method names the stage of the volume chain that produced a figure.
type Method string

const (
	MethodWatertight  Method = "watertight"
	MethodConvexHull  Method = "convex_hull"
	MethodBoundingBox Method = "bounding_box"
)

// Confidence grades how far a volume figure can be trusted.
type Confidence string

const (
	ConfidenceExact       Confidence = "exact"
	ConfidenceApproximate Confidence = "approximate"
	ConfidenceLow         Confidence = "low"
)

func (m Method) Confidence() Confidence {
	switch m {
	case MethodWatertight:
		return ConfidenceExact
	case MethodConvexHull:
		return ConfidenceApproximate
	default:
		return ConfidenceLow
	}
}

const mm3PerCM3 = 1000.0

// Options tunes the estimator heuristics.
type Options struct {
	// MeterThreshold: a model whose largest extent is below this value is
	// assumed to be authored in meters.
	MeterThreshold float64
	// MeterScale converts meter-authored models to millimeters.
	MeterScale float64
	// BoundingBoxFactor is the share of the bounding-box volume used when
	// no hull can be built.
	BoundingBoxFactor float64
	// MergeTolerance is the vertex welding distance in millimeters.
	MergeTolerance float64
}

// DefaultOptions returns the heuristics used by the service.
func DefaultOptions() Options {
	return Options{
		MeterThreshold:    2.0,
		MeterScale:        1000.0,
		BoundingBoxFactor: 0.5,
		MergeTolerance:    1e-6,
	}
}

// Outcome records one attempted stage of the volume chain.
type Outcome struct {
	Method    Method
	VolumeMM3 float64
	Err       error
}

// Summary is the geometry figure handed to the quote engine.
type Summary struct {
	VolumeCM3  float64
	ExtentsMM  Vec3
	Method     Method
	Confidence Confidence
	// Rescaled is true when the model was treated as meter-authored.
	Rescaled bool
	Attempts []Outcome
}

type stage struct {
	method Method
	run    func(*Mesh) (float64, error)
}

// Estimate derives the volume in cm³ and bounding extents in mm of a
// triangulated solid. It never fails: each stage of the chain that cannot
// produce a figure hands over to the next, ending with a fraction of the
// bounding-box volume.
func Estimate(m *Mesh, opts Options) Summary {
	if m == nil {
		m = &Mesh{}
	}

	var s Summary
	extents := m.Extents()
	largest := math.Max(extents[0], math.Max(extents[1], extents[2]))
	if largest > 0 && largest < opts.MeterThreshold && opts.MeterScale > 0 {
		m = m.Scaled(opts.MeterScale)
		extents = m.Extents()
		s.Rescaled = true
	}
	s.ExtentsMM = extents

	repaired := MergeVertices(m, opts.MergeTolerance)

	stages := []stage{
		{MethodWatertight, WatertightVolume},
		{MethodConvexHull, ConvexHullVolume},
	}
	for _, st := range stages {
		vol, err := st.run(repaired)
		if err == nil && !(vol >= 0 && !math.IsInf(vol, 0)) {
			err = errors.New("non-finite volume")
		}
		s.Attempts = append(s.Attempts, Outcome{Method: st.method, VolumeMM3: vol, Err: err})
		if err == nil {
			return s.resolve(st.method, vol)
		}
	}

	vol := boundingBoxVolume(extents, opts.BoundingBoxFactor)
	s.Attempts = append(s.Attempts, Outcome{Method: MethodBoundingBox, VolumeMM3: vol})
	return s.resolve(MethodBoundingBox, vol)
}

func (s Summary) resolve(method Method, volumeMM3 float64) Summary {
	s.Method = method
	s.Confidence = method.Confidence()
	s.VolumeCM3 = volumeMM3 / mm3PerCM3
	return s
}

func boundingBoxVolume(extents Vec3, factor float64) float64 {
	vol := factor * extents[0] * extents[1] * extents[2]
	if math.IsNaN(vol) || math.IsInf(vol, 0) || vol < 0 {
		return 0
	}
	return vol
}
