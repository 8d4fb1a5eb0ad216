package Transformer

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius 投影使用的地球半径（米）
const EarthRadius = 6371010.0

var (
	ErrPolarSingularity = errors.New("latitude at or beyond the poles")
	ErrNonFinite        = errors.New("coordinate is not finite")
)

// GeoPoint 经纬度坐标（度）
type GeoPoint struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// PlanarPoint 局部平面坐标（米），y 恒为 0
type PlanarPoint struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// ProjectionError 投影失败
type ProjectionError struct {
	Point GeoPoint
	Err   error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("project (%g, %g): %v", e.Point.Lng, e.Point.Lat, e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Project 球面墨卡托投影到局部平面。纬度增大时 z 减小。
// ln(tan(π/4+φ/2)) 按 asinh(tan φ) 计算，赤道处结果精确为 0。
func Project(p GeoPoint) (PlanarPoint, error) {
	if !isFinite(p.Lng) || !isFinite(p.Lat) {
		return PlanarPoint{}, &ProjectionError{Point: p, Err: ErrNonFinite}
	}
	if math.Abs(p.Lat) >= 90 {
		return PlanarPoint{}, &ProjectionError{Point: p, Err: ErrPolarSingularity}
	}

	x := EarthRadius * p.Lng * math.Pi / 180
	z := -EarthRadius * math.Asinh(math.Tan(p.Lat*math.Pi/180))
	if !isFinite(x) || !isFinite(z) {
		return PlanarPoint{}, &ProjectionError{Point: p, Err: ErrPolarSingularity}
	}
	// 去掉 -0，保证结果逐位一致
	if z == 0 {
		z = 0
	}
	return PlanarPoint{X: x, Z: z}, nil
}

// Unproject Project 的逆变换
func Unproject(p PlanarPoint) GeoPoint {
	lng := (p.X / EarthRadius) * (180 / math.Pi)
	lat := math.Atan(math.Sinh(-p.Z/EarthRadius)) * (180 / math.Pi)
	return GeoPoint{Lng: lng, Lat: lat}
}

// LocalFrame 以地图中心为原点的局部坐标系
type LocalFrame struct {
	Origin PlanarPoint
}

// NewLocalFrame 以 center 的投影坐标作为原点
func NewLocalFrame(center GeoPoint) (LocalFrame, error) {
	origin, err := Project(center)
	if err != nil {
		return LocalFrame{}, fmt.Errorf("map center: %w", err)
	}
	return LocalFrame{Origin: origin}, nil
}

func (f LocalFrame) ToLocal(p GeoPoint) (PlanarPoint, error) {
	q, err := Project(p)
	if err != nil {
		return PlanarPoint{}, err
	}
	return PlanarPoint{X: q.X - f.Origin.X, Z: q.Z - f.Origin.Z}, nil
}

func (f LocalFrame) FromLocal(p PlanarPoint) GeoPoint {
	return Unproject(PlanarPoint{X: p.X + f.Origin.X, Z: p.Z + f.Origin.Z})
}

// ProjectRing 投影整个环，遇到第一个无效顶点即返回错误
func (f LocalFrame) ProjectRing(ring []GeoPoint) ([]PlanarPoint, error) {
	out := make([]PlanarPoint, len(ring))
	for i, p := range ring {
		q, err := f.ToLocal(p)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		out[i] = q
	}
	return out, nil
}
