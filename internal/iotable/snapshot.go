package iotable

// Snapshot is an immutable copy of the I/O table at one instant.
// The zero value is an empty snapshot.
type Snapshot struct {
	points []Point
	index  map[string]int
}

// Lookup implements View.
func (s Snapshot) Lookup(tag string) (Point, bool) {
	i, ok := s.index[tag]
	if !ok {
		return Point{}, false
	}
	return s.points[i], true
}

// Points returns the points in declaration order.
// The returned slice is a copy.
func (s Snapshot) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Len returns the number of points.
func (s Snapshot) Len() int { return len(s.points) }

// FaultCount returns the number of faulted points.
func (s Snapshot) FaultCount() int {
	n := 0
	for _, p := range s.points {
		if p.Fault {
			n++
		}
	}
	return n
}

// Faulted returns the tags of faulted points in declaration order.
func (s Snapshot) Faulted() []string {
	var tags []string
	for _, p := range s.points {
		if p.Fault {
			tags = append(tags, p.Tag)
		}
	}
	return tags
}
