package pricing

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Simplici0/meshquote/internal/catalog"
)

// Breakdown contains the intermediate values of one quote line.
type Breakdown struct {
	StartupFee      float64
	MaterialRate    float64
	MaterialCost    float64
	Volume          float64
	VolumeFactor    float64
	EffectiveVolume float64
	Technology      string
}

// Line is the price of one (method, material) pairing. Values are kept
// unrounded; rounding happens when the line is rendered.
type Line struct {
	MethodKey   string
	MaterialKey string
	Name        string
	TechName    string
	Description string
	UnitPrice   float64
	Breakdown   Breakdown
}

// Calculate prices one material of a method for a part of volumeCM3.
// Negative or non-finite volumes are treated as zero.
func Calculate(volumeCM3 float64, method catalog.Method, material catalog.Material) Line {
	if !(volumeCM3 > 0) || math.IsInf(volumeCM3, 0) {
		volumeCM3 = 0
	}

	effectiveVolume := volumeCM3 * method.VolumeFactor
	materialCost := effectiveVolume * material.Rate
	unitPrice := materialCost + method.StartupFee

	return Line{
		MethodKey:   method.Key,
		MaterialKey: material.Key,
		Name:        material.Name,
		TechName:    method.Name,
		Description: material.Description,
		UnitPrice:   unitPrice,
		Breakdown: Breakdown{
			StartupFee:      method.StartupFee,
			MaterialRate:    material.Rate,
			MaterialCost:    materialCost,
			Volume:          volumeCM3,
			VolumeFactor:    method.VolumeFactor,
			EffectiveVolume: effectiveVolume,
			Technology:      method.Name,
		},
	}
}

// MethodQuote holds the lines of one method in catalog order.
type MethodQuote struct {
	Key   string
	Lines []Line
}

// Matrix is the full cross product of methods and materials for one part.
type Matrix struct {
	Methods []MethodQuote
}

// Build prices every material of every method in cat for a part of
// volumeCM3. The traversal follows catalog declaration order, so equal
// inputs always yield equal matrices.
func Build(volumeCM3 float64, cat *catalog.Catalog) Matrix {
	var matrix Matrix
	for _, category := range cat.Categories {
		for _, method := range category.Methods {
			mq := MethodQuote{Key: method.Key, Lines: make([]Line, 0, len(method.Materials))}
			for _, material := range method.Materials {
				mq.Lines = append(mq.Lines, Calculate(volumeCM3, method, material))
			}
			matrix.Methods = append(matrix.Methods, mq)
		}
	}
	return matrix
}

// Lookup returns the line for a (method, material) pair.
func (m Matrix) Lookup(method, material string) (Line, bool) {
	for _, mq := range m.Methods {
		if mq.Key != method {
			continue
		}
		for _, l := range mq.Lines {
			if l.MaterialKey == material {
				return l, true
			}
		}
	}
	return Line{}, false
}

// Money rounds a currency amount to cents.
func Money(v float64) float64 {
	return Round(v, 2)
}

// Round rounds half away from zero to the given decimal places.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

type breakdownJSON struct {
	StartupFee      float64 `json:"startup_fee"`
	MaterialRate    float64 `json:"material_rate"`
	MaterialCost    float64 `json:"material_cost"`
	Volume          float64 `json:"volume"`
	VolumeFactor    float64 `json:"volume_factor"`
	EffectiveVolume float64 `json:"effective_volume"`
	Technology      string  `json:"technology"`
}

type lineJSON struct {
	Name        string        `json:"name"`
	TechName    string        `json:"tech_name"`
	UnitPrice   float64       `json:"unit_price"`
	Description string        `json:"description"`
	Breakdown   breakdownJSON `json:"breakdown"`
}

func (l Line) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineJSON{
		Name:        l.Name,
		TechName:    l.TechName,
		UnitPrice:   Money(l.UnitPrice),
		Description: l.Description,
		Breakdown: breakdownJSON{
			StartupFee:      Money(l.Breakdown.StartupFee),
			MaterialRate:    l.Breakdown.MaterialRate,
			MaterialCost:    Money(l.Breakdown.MaterialCost),
			Volume:          Round(l.Breakdown.Volume, 2),
			VolumeFactor:    l.Breakdown.VolumeFactor,
			EffectiveVolume: Round(l.Breakdown.EffectiveVolume, 2),
			Technology:      l.Breakdown.Technology,
		},
	})
}

// MarshalJSON renders the matrix as {method: {material: line}} in catalog order.
func (m Matrix) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, *orderedmap.OrderedMap[string, Line]]()
	for _, mq := range m.Methods {
		lines := orderedmap.New[string, Line]()
		for _, l := range mq.Lines {
			lines.Set(l.MaterialKey, l)
		}
		out.Set(mq.Key, lines)
	}
	return json.Marshal(out)
}
