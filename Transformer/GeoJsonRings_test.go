package Transformer

import (
	"errors"
	"testing"
)

func TestParsePolygons(t *testing.T) {
	cases := []struct {
		name     string
		data     string
		polygons int
		rings    int
	}{
		{
			name:     "polygon",
			data:     `{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[1,0],[0,0]]]}`,
			polygons: 1,
			rings:    1,
		},
		{
			name: "polygon with hole",
			data: `{"type":"Polygon","coordinates":[[[0,0],[0,4],[4,4],[4,0],[0,0]],
				[[1,1],[1,2],[2,2],[2,1],[1,1]]]}`,
			polygons: 1,
			rings:    2,
		},
		{
			name: "multipolygon",
			data: `{"type":"MultiPolygon","coordinates":[[[[0,0],[0,1],[1,1],[0,0]]],
				[[[5,5],[5,6],[6,6],[5,5]]]]}`,
			polygons: 2,
			rings:    1,
		},
		{
			name:     "feature",
			data:     `{"type":"Feature","properties":{"level":1},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[0,0]]]}}`,
			polygons: 1,
			rings:    1,
		},
		{
			name: "feature collection",
			data: `{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[0,0]]]}},
				{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[2,2],[2,3],[3,3],[2,2]]]]}}]}`,
			polygons: 2,
			rings:    1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ps, err := ParsePolygons([]byte(tc.data))
			if err != nil {
				t.Fatalf("ParsePolygons: %v", err)
			}
			if len(ps) != tc.polygons {
				t.Fatalf("expected %d polygons, got %d", tc.polygons, len(ps))
			}
			if len(ps[0]) != tc.rings {
				t.Fatalf("expected %d rings, got %d", tc.rings, len(ps[0]))
			}
		})
	}
}

func TestParsePolygonsErrors(t *testing.T) {
	if _, err := ParsePolygons([]byte(`{"type":"Point","coordinates":[1,2]}`)); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("expected ErrUnsupportedGeometry, got %v", err)
	}
	if _, err := ParsePolygons([]byte(`{"type":"FeatureCollection","features":[]}`)); !errors.Is(err, ErrEmptyGeometry) {
		t.Fatalf("expected ErrEmptyGeometry, got %v", err)
	}
	if _, err := ParsePolygons([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCoordsToGeoPoints(t *testing.T) {
	pts, err := CoordsToGeoPoints([][]float64{{106.5, 29.5}, {106.6, 29.6, 300}})
	if err != nil {
		t.Fatalf("CoordsToGeoPoints: %v", err)
	}
	if pts[1] != (GeoPoint{Lng: 106.6, Lat: 29.6}) {
		t.Fatalf("unexpected point %+v", pts[1])
	}
	if _, err := CoordsToGeoPoints([][]float64{{1}}); err == nil {
		t.Fatalf("expected dimension error")
	}
}
