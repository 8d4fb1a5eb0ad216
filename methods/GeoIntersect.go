package methods

import (
	"math"

	"github.com/GrainArc/HydroMesh/Transformer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PointFlooded 点是否落在任一水面多边形内，边界上算作淹没
func PointFlooded(pt orb.Point, geoms ...orb.Geometry) bool {
	for _, g := range geoms {
		switch geom := g.(type) {
		case orb.Polygon:
			if len(geom) > 0 && planar.PolygonContains(geom, pt) {
				return true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(geom, pt) {
				return true
			}
		}
	}
	return false
}

// RingArea 局部平面上环的面积（平方米）
func RingArea(ring []Transformer.PlanarPoint) float64 {
	if len(ring) < 3 {
		return 0
	}
	r := make(orb.Ring, 0, len(ring)+1)
	for _, p := range ring {
		r = append(r, orb.Point{p.X, p.Z})
	}
	if !r.Closed() {
		r = append(r, r[0])
	}
	return math.Abs(planar.Area(r))
}
