package geo

import (
	"errors"
	"math"
	"testing"
)

func TestSurfaceDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"same point", Point{Lon: 10, Lat: 45}, Point{Lon: 10, Lat: 45}, 0},
		{"one degree of latitude", Point{Lon: 0, Lat: 0}, Point{Lon: 0, Lat: 1}, 111.19},
		{"one degree of longitude on equator", Point{Lon: 0, Lat: 0}, Point{Lon: 1, Lat: 0}, 111.19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SurfaceDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("SurfaceDistance() = %.4f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestDistanceIncludesDepth(t *testing.T) {
	a := Point{Lon: 0, Lat: 0, Depth: 0}
	b := Point{Lon: 0, Lat: 0, Depth: 10}
	if got := Distance(a, b); math.Abs(got-10) > 1e-9 {
		t.Errorf("Distance() = %v, want 10", got)
	}
}

func TestMinDistance(t *testing.T) {
	if got := MinDistance(nil, Point{}); !math.IsInf(got, 1) {
		t.Errorf("MinDistance(nil) = %v, want +Inf", got)
	}

	points := []Point{{Lon: 0, Lat: 2}, {Lon: 0, Lat: 1}}
	got := MinDistance(points, Point{})
	if math.Abs(got-SurfaceDistance(points[1], Point{})) > 1e-9 {
		t.Errorf("MinDistance() = %v, want distance to nearest point", got)
	}
}

func TestNewLine(t *testing.T) {
	if _, err := NewLine(nil); !errors.Is(err, ErrEmptyLine) {
		t.Fatalf("NewLine(nil) error = %v, want ErrEmptyLine", err)
	}

	line, err := NewLine([]Point{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}})
	if err != nil {
		t.Fatalf("NewLine() error = %v", err)
	}
	if line.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after dropping duplicates", line.Len())
	}
	if !line.OnSurface() {
		t.Error("OnSurface() = false, want true")
	}
	if math.Abs(line.Length()-111.19) > 0.01 {
		t.Errorf("Length() = %v, want ~111.19", line.Length())
	}
}

func TestLineResample(t *testing.T) {
	line, err := NewLine([]Point{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}})
	if err != nil {
		t.Fatalf("NewLine() error = %v", err)
	}

	points := line.Resample(10)
	if len(points) != 13 {
		t.Fatalf("Resample(10) returned %d points, want 13", len(points))
	}
	if points[0] != line.Points[0] || points[len(points)-1] != line.Points[1] {
		t.Error("Resample() must keep the line end points")
	}
	for i := 1; i < len(points); i++ {
		if d := Distance(points[i-1], points[i]); d > 10+1e-6 {
			t.Errorf("spacing %d = %v, want <= 10", i, d)
		}
	}
}

func TestSiteCollection(t *testing.T) {
	sc := NewSiteCollection([]Site{
		{ID: 7, Location: Point{Lon: 0, Lat: 0}},
		{ID: 9, Location: Point{Lon: 0, Lat: 3}},
	})
	if sc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", sc.Len())
	}
	if sc.Sites[0].ID != 0 || sc.Sites[1].ID != 1 {
		t.Errorf("site ids not renumbered: %+v", sc.Sites)
	}

	src := []Point{{Lon: 0, Lat: 0.5}}
	ids := sc.Within(src, 100)
	if len(ids) != 1 || ids[0] != 0 {
		t.Errorf("Within(100) = %v, want [0]", ids)
	}
	if ids := sc.Within(src, 0); len(ids) != 2 {
		t.Errorf("Within(0) = %v, want all sites", ids)
	}

	if d := sc.MinDistance(src); math.Abs(d-55.6) > 0.1 {
		t.Errorf("MinDistance() = %v, want ~55.6", d)
	}

	var empty *SiteCollection
	if empty.Len() != 0 {
		t.Error("nil collection must have zero length")
	}
}

func TestSiteCollectionFilter(t *testing.T) {
	sc := NewSiteCollection([]Site{
		{Location: Point{Lon: 0}}, {Location: Point{Lon: 1}}, {Location: Point{Lon: 2}},
	})
	sub := sc.Filter([]int{2, 0, 42})
	ids := sub.IDs()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Fatalf("Filter().IDs() = %v, want [0 2]", ids)
	}

	// ids survive a second filter
	if ids := sub.Filter([]int{2}).IDs(); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("second Filter().IDs() = %v, want [2]", ids)
	}
}
