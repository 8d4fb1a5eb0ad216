package Transformer

import (
	"errors"
	"math"
	"testing"
)

func TestProjectOrigin(t *testing.T) {
	p, err := Project(GeoPoint{Lng: 0, Lat: 0})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if p != (PlanarPoint{X: 0, Z: 0}) {
		t.Fatalf("origin projected to %+v", p)
	}
	if math.Signbit(p.Z) || math.Signbit(p.X) {
		t.Fatalf("origin should not produce negative zero: %+v", p)
	}
}

func TestProjectSignConvention(t *testing.T) {
	north, err := Project(GeoPoint{Lng: 10, Lat: 45})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if north.X <= 0 {
		t.Fatalf("east longitude should give positive x, got %v", north.X)
	}
	if north.Z >= 0 {
		t.Fatalf("north latitude should give negative z, got %v", north.Z)
	}
	want := -EarthRadius * math.Log(math.Tan(math.Pi/4+45*math.Pi/360))
	if math.Abs(north.Z-want) > 1e-6 {
		t.Fatalf("z = %v, want %v", north.Z, want)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	cases := []GeoPoint{
		{Lng: 106.55, Lat: 29.56},
		{Lng: -122.42, Lat: 37.77},
		{Lng: 179.9, Lat: -60},
		{Lng: -0.0001, Lat: 0.0001},
		{Lng: 12, Lat: 84.9},
	}
	for _, g := range cases {
		p, err := Project(g)
		if err != nil {
			t.Fatalf("Project(%+v): %v", g, err)
		}
		back := Unproject(p)
		if !near(back.Lng, g.Lng) || !near(back.Lat, g.Lat) {
			t.Fatalf("round trip %+v -> %+v -> %+v", g, p, back)
		}
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func TestProjectErrors(t *testing.T) {
	cases := []struct {
		name string
		in   GeoPoint
		want error
	}{
		{"north pole", GeoPoint{Lng: 0, Lat: 90}, ErrPolarSingularity},
		{"south pole", GeoPoint{Lng: 0, Lat: -90}, ErrPolarSingularity},
		{"beyond pole", GeoPoint{Lng: 0, Lat: 91}, ErrPolarSingularity},
		{"nan latitude", GeoPoint{Lng: 0, Lat: math.NaN()}, ErrNonFinite},
		{"infinite longitude", GeoPoint{Lng: math.Inf(-1), Lat: 0}, ErrNonFinite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Project(tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var pe *ProjectionError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProjectionError, got %T", err)
			}
		})
	}
}

func TestLocalFrame(t *testing.T) {
	center := GeoPoint{Lng: 106.55, Lat: 29.56}
	f, err := NewLocalFrame(center)
	if err != nil {
		t.Fatalf("NewLocalFrame: %v", err)
	}
	o, err := f.ToLocal(center)
	if err != nil {
		t.Fatalf("ToLocal: %v", err)
	}
	if o != (PlanarPoint{}) {
		t.Fatalf("centre should map to local origin, got %+v", o)
	}

	g := GeoPoint{Lng: 106.56, Lat: 29.57}
	local, err := f.ToLocal(g)
	if err != nil {
		t.Fatalf("ToLocal: %v", err)
	}
	back := f.FromLocal(local)
	if !near(back.Lng, g.Lng) || !near(back.Lat, g.Lat) {
		t.Fatalf("local round trip %+v -> %+v", g, back)
	}

	ring := []GeoPoint{center, g, {Lng: 0, Lat: 90}}
	if _, err := f.ProjectRing(ring); !errors.Is(err, ErrPolarSingularity) {
		t.Fatalf("expected polar error from ring, got %v", err)
	}
	if _, err := NewLocalFrame(GeoPoint{Lat: -90}); err == nil {
		t.Fatalf("polar centre should be rejected")
	}
}
