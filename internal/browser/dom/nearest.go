// internal/browser/dom/nearest.go
package dom

import (
	"math"
	"sort"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// DefaultRadius is the search radius around an estimated location.
const DefaultRadius = 200.0

// WithinRadius returns the candidates whose box lies within radius of p,
// closest first. The distance is measured from p to the nearest point of
// the box, so a point inside a box has distance zero. Frame candidates are
// left out because their boxes are in frame coordinates.
func WithinRadius(doc *Document, opts MinifyOptions, p Point, radius float64) []schemas.CandidateElement {
	if radius <= 0 {
		radius = DefaultRadius
	}

	type scored struct {
		c    schemas.CandidateElement
		dist float64
	}
	var hits []scored
	for _, e := range collect(doc, opts) {
		if e.candidate.Meta.InFrame {
			continue
		}
		if d := distanceToBox(p, e.box); d <= radius {
			hits = append(hits, scored{e.candidate, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]schemas.CandidateElement, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

func distanceToBox(p Point, r Rect) float64 {
	cx := math.Max(r.X, math.Min(p.X, r.X+r.Width))
	cy := math.Max(r.Y, math.Min(p.Y, r.Y+r.Height))
	return math.Hypot(cx-p.X, cy-p.Y)
}
