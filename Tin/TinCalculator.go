package Tin

import (
	"errors"
	"fmt"
	"math"

	"github.com/GrainArc/HydroMesh/Transformer"
)

var ErrSelfIntersecting = errors.New("ring is not simple")

// GeometryError 几何前置条件不满足
type GeometryError struct {
	Ring  int // 0 为外环，其余为洞
	EdgeA int
	EdgeB int
	Err   error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("ring %d: edges %d and %d intersect: %v", e.Ring, e.EdgeA, e.EdgeB, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// PointInPolygon 偶奇规则射线法：向 +x 方向的射线穿过奇数条边即在内部
// 边界上的点按该规则的计算结果归属，不做特殊处理。
func PointInPolygon(x, z float64, poly Polygon) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, zi := poly[i].X, poly[i].Z
		xj, zj := poly[j].X, poly[j].Z
		if (zi > z) != (zj > z) && x < (xj-xi)*(z-zi)/(zj-zi)+xi {
			inside = !inside
		}
	}
	return inside
}

// ringSet 外环加洞，偶奇规则在所有环上累计
type ringSet []Polygon

func (rs ringSet) contains(x, z float64) bool {
	inside := false
	for _, r := range rs {
		if PointInPolygon(x, z, r) {
			inside = !inside
		}
	}
	return inside
}

// Bounds 外包框，最小值向下取整、最大值向上取整
func Bounds(poly Polygon) (xMin, xMax, zMin, zMax float64) {
	if len(poly) == 0 {
		return 0, 0, 0, 0
	}
	xMin, xMax = poly[0].X, poly[0].X
	zMin, zMax = poly[0].Z, poly[0].Z
	for _, p := range poly[1:] {
		xMin = math.Min(xMin, p.X)
		xMax = math.Max(xMax, p.X)
		zMin = math.Min(zMin, p.Z)
		zMax = math.Max(zMax, p.Z)
	}
	return math.Floor(xMin), math.Ceil(xMax), math.Floor(zMin), math.Ceil(zMax)
}

// Centroid 三角形重心
func Centroid(a, b, c Transformer.PlanarPoint) Transformer.PlanarPoint {
	return Transformer.PlanarPoint{
		X: (a.X + b.X + c.X) / 3,
		Z: (a.Z + b.Z + c.Z) / 3,
	}
}

// triangleArea 有向面积的绝对值
func triangleArea(a, b, c Transformer.PlanarPoint) float64 {
	return math.Abs((b.X-a.X)*(c.Z-a.Z)-(c.X-a.X)*(b.Z-a.Z)) / 2
}

// openRing 去掉与首点重合的闭合点
func openRing(poly Polygon) Polygon {
	n := len(poly)
	if n > 1 && poly[0] == poly[n-1] {
		return poly[:n-1]
	}
	return poly
}

// ValidateSimple 检查环是否自相交（任意两条不相邻的边相交即失败）
func ValidateSimple(poly Polygon) error {
	return validateRing(0, poly)
}

func validateRing(ring int, poly Polygon) error {
	r := openRing(poly)
	n := len(r)
	if n < 4 {
		// 三角形或更少的点不可能自相交
		return nil
	}
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := r[j], r[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return &GeometryError{Ring: ring, EdgeA: i, EdgeB: j, Err: ErrSelfIntersecting}
			}
		}
	}
	return nil
}

func orient(a, b, c Transformer.PlanarPoint) float64 {
	return (b.X-a.X)*(c.Z-a.Z) - (b.Z-a.Z)*(c.X-a.X)
}

func onSegment(a, b, p Transformer.PlanarPoint) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Z, b.Z) <= p.Z && p.Z <= math.Max(a.Z, b.Z)
}

func segmentsIntersect(p1, p2, q1, q2 Transformer.PlanarPoint) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}
