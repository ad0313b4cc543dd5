package geo

// Line is a sequence of points, typically a fault trace
type Line struct {
	Points []Point
}

// NewLine creates a line, dropping consecutive duplicated points
func NewLine(points []Point) (*Line, error) {
	cleaned := make([]Point, 0, len(points))
	for i, p := range points {
		if i > 0 && p == points[i-1] {
			continue
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyLine
	}
	return &Line{Points: cleaned}, nil
}

// Len returns the number of points
func (l *Line) Len() int {
	return len(l.Points)
}

// OnSurface reports whether every point has zero depth
func (l *Line) OnSurface() bool {
	for _, p := range l.Points {
		if p.Depth != 0 {
			return false
		}
	}
	return true
}

// Length returns the length of the line in km
func (l *Line) Length() float64 {
	total := 0.0
	for i := 1; i < len(l.Points); i++ {
		total += Distance(l.Points[i-1], l.Points[i])
	}
	return total
}

// Resample returns points spaced at most step km apart along the line,
// keeping the original vertices. A non-positive step returns a copy.
func (l *Line) Resample(step float64) []Point {
	out := []Point{l.Points[0]}
	if step <= 0 {
		return append([]Point(nil), l.Points...)
	}
	for i := 1; i < len(l.Points); i++ {
		a, b := l.Points[i-1], l.Points[i]
		seg := Distance(a, b)
		n := int(seg / step)
		for k := 1; k <= n; k++ {
			f := float64(k) * step / seg
			if f >= 1 {
				break
			}
			out = append(out, Point{
				Lon:   a.Lon + f*(b.Lon-a.Lon),
				Lat:   a.Lat + f*(b.Lat-a.Lat),
				Depth: a.Depth + f*(b.Depth-a.Depth),
			})
		}
		out = append(out, b)
	}
	return out
}
