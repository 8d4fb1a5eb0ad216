package Tin

import (
	"errors"
	"fmt"
	"math"

	"github.com/GrainArc/HydroMesh/Transformer"
	"github.com/fogleman/delaunay"
)

var (
	ErrInvalidInterval = errors.New("grid interval must be a positive finite number")
	ErrGridTooLarge    = errors.New("sample grid exceeds the configured limit")
)

type meshConfig struct {
	interval   float64
	validate   bool
	holes      []Polygon
	maxSamples int
}

// MeshOption 构网参数
type MeshOption func(*meshConfig)

// WithInterval 设置加密网格间距
func WithInterval(interval float64) MeshOption {
	return func(c *meshConfig) { c.interval = interval }
}

// WithValidation 构网前检查外环和洞是否自相交
func WithValidation() MeshOption {
	return func(c *meshConfig) { c.validate = true }
}

// WithHoles 内环参与偶奇判断，洞内不生成网格
func WithHoles(holes ...Polygon) MeshOption {
	return func(c *meshConfig) { c.holes = append(c.holes, holes...) }
}

// WithMaxSamples 限制候选网格点数量，0 表示不限制
func WithMaxSamples(n int) MeshOption {
	return func(c *meshConfig) { c.maxSamples = n }
}

// SampleGrid 在外包框内按 interval 生成格网，只保留多边形内部的点
func SampleGrid(poly Polygon, interval float64) []Transformer.PlanarPoint {
	points, _ := sampleGrid(poly, ringSet{poly}, interval, 0)
	return points
}

func sampleGrid(outer Polygon, rings ringSet, interval float64, maxSamples int) ([]Transformer.PlanarPoint, error) {
	if len(outer) == 0 {
		return nil, nil
	}
	xMin, xMax, zMin, zMax := Bounds(outer)
	// 行列数按浮点计算，任一方向超过 MaxInt32 直接拒绝
	rx := math.Ceil((xMax-xMin)/interval) + 1
	rz := math.Ceil((zMax-zMin)/interval) + 1
	if !(rx <= math.MaxInt32) || !(rz <= math.MaxInt32) {
		return nil, fmt.Errorf("%w: %g x %g candidates", ErrGridTooLarge, rx, rz)
	}
	if maxSamples > 0 && rx*rz > float64(maxSamples) {
		return nil, fmt.Errorf("%w: %g x %g candidates, limit %d", ErrGridTooLarge, rx, rz, maxSamples)
	}
	rows, cols := int(rx), int(rz)

	var points []Transformer.PlanarPoint
	for i := 0; i < rows; i++ {
		x := xMin + float64(i)*interval
		for j := 0; j < cols; j++ {
			z := zMin + float64(j)*interval
			if rings.contains(x, z) {
				points = append(points, Transformer.PlanarPoint{X: x, Z: z})
			}
		}
	}
	return points, nil
}

// AugmentPoints 边界点在前、格网点在后，下标顺序即缓冲区顺序
func AugmentPoints(boundary Polygon, grid []Transformer.PlanarPoint) []Transformer.PlanarPoint {
	points := make([]Transformer.PlanarPoint, 0, len(boundary)+len(grid))
	points = append(points, boundary...)
	points = append(points, grid...)
	return points
}

// Triangulate 对点集做 Delaunay 三角剖分
// 少于 3 个点或全部共线时没有三角形，重复点被忽略。
func Triangulate(points []Transformer.PlanarPoint) []Triangle {
	if len(points) < 3 {
		return nil
	}
	pts := make([]delaunay.Point, len(points))
	for i, p := range points {
		pts[i] = delaunay.Point{X: p.X, Y: p.Z}
	}
	tri, err := delaunay.Triangulate(pts)
	if err != nil {
		// 只在找不到非退化种子三角形时出错
		return nil
	}

	triangles := make([]Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		triangles = append(triangles, Triangle{tri.Triangles[i], tri.Triangles[i+1], tri.Triangles[i+2]})
	}
	return triangles
}

// FilterInterior 只保留重心落在原多边形内的三角形
func FilterInterior(points []Transformer.PlanarPoint, triangles []Triangle, poly Polygon) []Triangle {
	return filterInterior(points, triangles, ringSet{poly})
}

func filterInterior(points []Transformer.PlanarPoint, triangles []Triangle, rings ringSet) []Triangle {
	kept := make([]Triangle, 0, len(triangles))
	for _, t := range triangles {
		c := Centroid(points[t[0]], points[t[1]], points[t[2]])
		if rings.contains(c.X, c.Z) {
			kept = append(kept, t)
		}
	}
	return kept
}

// BuildWaterMesh 多边形 → 水面网格
// 点数不足或退化的多边形返回空网格而不是错误。
func BuildWaterMesh(poly Polygon, opts ...MeshOption) (*MeshBuffers, error) {
	cfg := meshConfig{interval: DefaultInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !(cfg.interval > 0) || math.IsInf(cfg.interval, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, cfg.interval)
	}

	if cfg.validate {
		if err := validateRing(0, poly); err != nil {
			return nil, err
		}
		for i, h := range cfg.holes {
			if err := validateRing(i+1, h); err != nil {
				return nil, err
			}
		}
	}

	if len(poly) < 3 {
		return emitBuffers(poly, nil, len(poly)), nil
	}

	rings := make(ringSet, 0, 1+len(cfg.holes))
	rings = append(rings, poly)
	boundary := poly
	for _, h := range cfg.holes {
		if len(h) < 3 {
			continue
		}
		rings = append(rings, h)
		boundary = AugmentPoints(boundary, h)
	}

	grid, err := sampleGrid(poly, rings, cfg.interval, cfg.maxSamples)
	if err != nil {
		return nil, err
	}
	points := AugmentPoints(boundary, grid)

	kept := filterInterior(points, Triangulate(points), rings)
	return emitBuffers(points, kept, len(poly)), nil
}

func emitBuffers(points []Transformer.PlanarPoint, triangles []Triangle, boundaryCount int) *MeshBuffers {
	positions := make([]float64, 0, len(points)*3)
	for _, p := range points {
		positions = append(positions, p.X, 0, p.Z)
	}
	indices := make([]uint32, 0, len(triangles)*3)
	for _, t := range triangles {
		indices = append(indices, uint32(t[0]), uint32(t[1]), uint32(t[2]))
	}
	return &MeshBuffers{
		Positions:     positions,
		Indices:       indices,
		BoundaryCount: boundaryCount,
	}
}

// BuildCrossSection 剖面三角网：按 (x, z) 剖分，不做内部过滤
// 高程写入 y；Water 使用同一三角网，y 固定为 waterHeight。
func BuildCrossSection(points []Point3, waterHeight float64) (*CrossSection, error) {
	cs := &CrossSection{
		Surface: &MeshBuffers{Positions: []float64{}, Indices: []uint32{}},
		Water:   &MeshBuffers{Positions: []float64{}, Indices: []uint32{}},
	}
	if len(points) == 0 {
		return cs, nil
	}

	planar := make([]Transformer.PlanarPoint, len(points))
	cs.MinHeight, cs.MaxHeight = points[0].Y, points[0].Y
	for i, p := range points {
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("cross section point %d: %w", i, Transformer.ErrNonFinite)
		}
		planar[i] = Transformer.PlanarPoint{X: p.X, Z: p.Z}
		cs.MinHeight = math.Min(cs.MinHeight, p.Y)
		cs.MaxHeight = math.Max(cs.MaxHeight, p.Y)
	}

	triangles := Triangulate(planar)

	for _, p := range points {
		cs.Surface.Positions = append(cs.Surface.Positions, p.X, p.Y, p.Z)
		cs.Water.Positions = append(cs.Water.Positions, p.X, waterHeight, p.Z)
	}
	for _, t := range triangles {
		idx := []uint32{uint32(t[0]), uint32(t[1]), uint32(t[2])}
		cs.Surface.Indices = append(cs.Surface.Indices, idx...)
		cs.Water.Indices = append(cs.Water.Indices, idx...)
	}
	cs.Surface.BoundaryCount = len(points)
	cs.Water.BoundaryCount = len(points)
	return cs, nil
}
