package monitor

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/scanlink-data/scanlink/internal/profile"
)

// Summary describes the height distribution of one profile's valid points,
// in 1/1000 inch. Used for quick surface checks without exporting the raw
// point data.
type Summary struct {
	ValidPoints int
	MeanY       float64
	StdDevY     float64
	MedianY     float64
	P05Y        float64
	P95Y        float64
	MinX        float64
	MaxX        float64
}

// Summarize computes the height distribution of a profile. A profile with
// no valid points yields a zero Summary.
func Summarize(p *profile.Profile) Summary {
	var ys, xs []float64
	for _, pt := range p.Points {
		if pt.Valid() {
			ys = append(ys, float64(pt.Y))
			xs = append(xs, float64(pt.X))
		}
	}
	if len(ys) == 0 {
		return Summary{}
	}
	sort.Float64s(ys)

	s := Summary{
		ValidPoints: len(ys),
		MeanY:       stat.Mean(ys, nil),
		StdDevY:     stat.StdDev(ys, nil),
		MedianY:     stat.Quantile(0.5, stat.Empirical, ys, nil),
		P05Y:        stat.Quantile(0.05, stat.Empirical, ys, nil),
		P95Y:        stat.Quantile(0.95, stat.Empirical, ys, nil),
	}
	s.MinX, s.MaxX = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < s.MinX {
			s.MinX = x
		}
		if x > s.MaxX {
			s.MaxX = x
		}
	}
	return s
}
