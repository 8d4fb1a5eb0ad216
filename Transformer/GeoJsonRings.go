package Transformer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
	ErrEmptyGeometry       = errors.New("geometry contains no polygons")
	ErrInvalidGeoJSON      = errors.New("invalid geojson")
)

// geoJSONProbe 只读取 type 字段，用于判断输入是 Geometry、Feature 还是 FeatureCollection
type geoJSONProbe struct {
	Type string `json:"type"`
}

// ParsePolygons 解析 GeoJSON 文本中的全部多边形
// 支持 Polygon、MultiPolygon 以及包裹它们的 Feature / FeatureCollection。
// 每个多边形的第 0 个环为外环，其余为内环。
func ParsePolygons(data []byte) ([]orb.Polygon, error) {
	var probe geoJSONProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
	}

	var polygons []orb.Polygon
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: feature collection: %w", ErrInvalidGeoJSON, err)
		}
		for i, f := range fc.Features {
			ps, err := PolygonsFromGeometry(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			polygons = append(polygons, ps...)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: feature: %w", ErrInvalidGeoJSON, err)
		}
		ps, err := PolygonsFromGeometry(f.Geometry)
		if err != nil {
			return nil, err
		}
		polygons = ps
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: geometry: %w", ErrInvalidGeoJSON, err)
		}
		ps, err := PolygonsFromGeometry(g.Geometry())
		if err != nil {
			return nil, err
		}
		polygons = ps
	}

	if len(polygons) == 0 {
		return nil, ErrEmptyGeometry
	}
	return polygons, nil
}

// PolygonsFromGeometry 将 orb 几何拆成多边形列表
func PolygonsFromGeometry(g orb.Geometry) ([]orb.Polygon, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		if err := checkPolygon(geom); err != nil {
			return nil, err
		}
		return []orb.Polygon{geom}, nil
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(geom))
		for i, p := range geom {
			if err := checkPolygon(p); err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			out = append(out, p)
		}
		return out, nil
	case nil:
		return nil, ErrEmptyGeometry
	default:
		return nil, fmt.Errorf("%w: %s (only Polygon and MultiPolygon are supported)", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeoJSON)
	}
	for i, ring := range p {
		for j, pt := range ring {
			if math.IsNaN(pt[0]) || math.IsInf(pt[0], 0) ||
				math.IsNaN(pt[1]) || math.IsInf(pt[1], 0) {
				return fmt.Errorf("%w: invalid coordinate at ring %d index %d: [%f, %f]", ErrInvalidGeoJSON, i, j, pt[0], pt[1])
			}
		}
	}
	return nil
}

// RingToGeoPoints orb.Ring 的点为 [lng, lat]
func RingToGeoPoints(r orb.Ring) []GeoPoint {
	out := make([]GeoPoint, len(r))
	for i, p := range r {
		out[i] = GeoPoint{Lng: p[0], Lat: p[1]}
	}
	return out
}

// CoordsToGeoPoints 将 [[lng, lat, ...], ...] 转为 GeoPoint，多余维度忽略
func CoordsToGeoPoints(coords [][]float64) ([]GeoPoint, error) {
	out := make([]GeoPoint, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate at index %d has insufficient dimensions (need at least 2, got %d)", i, len(c))
		}
		out[i] = GeoPoint{Lng: c[0], Lat: c[1]}
	}
	return out, nil
}
