package geom

import "math"

// SphericalBox is a rectangle in (lon in [0,360), lat in [-90,90]).
// If Wraps is true the box spans from LonMin up through 360 and wraps
// to LonMax, i.e. LonMax < LonMin.
type SphericalBox struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// FullBox returns the box covering the entire sphere.
func FullBox() SphericalBox {
	return SphericalBox{LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90}
}

// EmptyBox returns a box with LatMax < LatMin, the canonical empty box.
func EmptyBox() SphericalBox {
	return SphericalBox{LatMin: 1, LatMax: -1}
}

// NewBox constructs a box, reducing lonMin/lonMax into [0,360) first.
// If lonMax < lonMin after reduction the box is treated as wrapping.
// A longitude range spanning 360 degrees or more yields the
// full-longitude box [0,360].
func NewBox(lonMin, lonMax, latMin, latMax float64) SphericalBox {
	if lonMax-lonMin >= 360 {
		return SphericalBox{LonMin: 0, LonMax: 360, LatMin: latMin, LatMax: latMax}
	}
	return SphericalBox{LonMin: ReduceLon(lonMin), LonMax: ReduceLon(lonMax), LatMin: latMin, LatMax: latMax}
}

// IsEmpty reports whether the box is empty (LatMax < LatMin).
func (b SphericalBox) IsEmpty() bool { return b.LatMax < b.LatMin }

// IsFull reports whether the box covers the whole sphere.
func (b SphericalBox) IsFull() bool {
	return !b.IsEmpty() && b.LatMin <= -90 && b.LatMax >= 90 && b.LonExtent() >= 360
}

// Wraps reports whether the box wraps across lon=0.
func (b SphericalBox) Wraps() bool { return !b.IsEmpty() && b.LonMax < b.LonMin }

// LonExtent returns the box's longitude extent in degrees, accounting
// for wraparound.
func (b SphericalBox) LonExtent() float64 {
	if b.IsEmpty() {
		return 0
	}
	if b.Wraps() {
		return 360 - b.LonMin + b.LonMax
	}
	return b.LonMax - b.LonMin
}

// Area returns the box's solid-angle area on the unit sphere, in
// steradians: (lonExtent in radians) * (sin(latMax) - sin(latMin)).
func (b SphericalBox) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	return b.LonExtent() * radPerDeg * (math.Sin(b.LatMax*radPerDeg) - math.Sin(b.LatMin*radPerDeg))
}

// ContainsLon reports whether lon (in degrees, any range) falls within
// the box's longitude interval.
func (b SphericalBox) ContainsLon(lon float64) bool {
	if b.IsEmpty() {
		return false
	}
	lon = ReduceLon(lon)
	if b.LonExtent() >= 360 {
		return true
	}
	if !b.Wraps() {
		return lon >= b.LonMin && lon <= b.LonMax
	}
	return lon >= b.LonMin || lon <= b.LonMax
}

// Contains reports whether (lonDeg,latDeg) falls within the box.
func (b SphericalBox) Contains(lonDeg, latDeg float64) bool {
	if b.IsEmpty() {
		return false
	}
	if latDeg < b.LatMin || latDeg > b.LatMax {
		return false
	}
	return b.ContainsLon(lonDeg)
}

// Intersects reports whether b and other overlap.
func (b SphericalBox) Intersects(other SphericalBox) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return false
	}
	if b.LatMax < other.LatMin || other.LatMax < b.LatMin {
		return false
	}
	return lonIntervalsIntersect(b, other)
}

func lonIntervalsIntersect(a, b SphericalBox) bool {
	if a.LonExtent() >= 360 || b.LonExtent() >= 360 {
		return true
	}
	// Decompose each into one or two non-wrapping [lo,hi] intervals and
	// test every pair.
	as := lonIntervals(a)
	bs := lonIntervals(b)
	for _, ai := range as {
		for _, bi := range bs {
			if ai[0] <= bi[1] && bi[0] <= ai[1] {
				return true
			}
		}
	}
	return false
}

func lonIntervals(b SphericalBox) [][2]float64 {
	if !b.Wraps() {
		return [][2]float64{{b.LonMin, b.LonMax}}
	}
	return [][2]float64{{b.LonMin, 360}, {0, b.LonMax}}
}

// Expand grows the box by radiusDeg in every direction: latitude
// symmetrically, longitude by MaxAlpha at the widened latitude band's
// edge (the longitude half-extent needed so a circle of that radius
// centered on the box's lon boundary still reaches into the box).
// Clamps latitude to [-90,90] and expands to the full sphere in
// longitude if either new latitude edge is within radiusDeg of a pole.
func (b SphericalBox) Expand(radiusDeg float64) SphericalBox {
	if b.IsEmpty() || radiusDeg <= 0 {
		return b
	}
	latMin := b.LatMin - radiusDeg
	latMax := b.LatMax + radiusDeg
	if latMin <= -90 {
		latMin = -90
	}
	if latMax >= 90 {
		latMax = 90
	}

	extremeLat := math.Max(math.Abs(b.LatMin), math.Abs(b.LatMax))
	if extremeLat+radiusDeg >= 90 {
		return SphericalBox{LonMin: 0, LonMax: 360, LatMin: latMin, LatMax: latMax}
	}
	alpha, err := MaxAlpha(radiusDeg, extremeLat)
	if err != nil {
		alpha = 180
	}
	lonMin := ReduceLon(b.LonMin - alpha)
	lonMax := ReduceLon(b.LonMax + alpha)
	if (lonMax-lonMin >= 0 && lonMax-lonMin+b.LonExtent() >= 360-1e-9) || b.LonExtent()+2*alpha >= 360 {
		lonMin, lonMax = 0, 360
	}
	return SphericalBox{LonMin: lonMin, LonMax: lonMax, LatMin: latMin, LatMax: latMax}
}

// boundingBox returns an axis-aligned SphericalBox enclosing the three
// triangle vertices, used as a cheap overapproximation when enumerating
// HTM triangles intersecting a box.
func boundingBox(v [3]Vec3) SphericalBox {
	lon0, lat0 := Spherical(v[0])
	lon1, lat1 := Spherical(v[1])
	lon2, lat2 := Spherical(v[2])
	latMin := math.Min(lat0, math.Min(lat1, lat2))
	latMax := math.Max(lat0, math.Max(lat1, lat2))

	// Longitude bounding of 3 points on a sphere is subtle near the pole
	// or the wrap seam; conservatively widen to the full sphere if the
	// triangle's vertices span more than a hemisphere in longitude,
	// which is always a safe overapproximation.
	lons := []float64{lon0, lon1, lon2}
	lonMin, lonMax := lons[0], lons[0]
	for _, l := range lons[1:] {
		if l < lonMin {
			lonMin = l
		}
		if l > lonMax {
			lonMax = l
		}
	}
	if lonMax-lonMin > 180 {
		return SphericalBox{LonMin: 0, LonMax: 360, LatMin: latMin, LatMax: latMax}
	}
	return SphericalBox{LonMin: lonMin, LonMax: lonMax, LatMin: latMin, LatMax: latMax}
}

// HTMIDs returns the (overapproximating) set of level-L HTM ids whose
// bounding box intersects b, found by recursive descent from the 8
// roots and pruning subtrees whose bounding box misses b.
func (b SphericalBox) HTMIDs(level int) ([]uint32, error) {
	if level < 0 || level > MaxHTMLevel {
		return nil, levelError{level}
	}
	var out []uint32
	for _, r := range roots {
		collectHTMIDs(r.vertices, r.id, 0, level, b, &out)
	}
	return out, nil
}

func collectHTMIDs(v [3]Vec3, id uint32, curLevel, targetLevel int, b SphericalBox, out *[]uint32) {
	if !boundingBox(v).Intersects(b) {
		return
	}
	if curLevel == targetLevel {
		*out = append(*out, id)
		return
	}
	t0, t1, t2, t3 := subdivide(v)
	collectHTMIDs(t0, 4*id, curLevel+1, targetLevel, b, out)
	collectHTMIDs(t1, 4*id+1, curLevel+1, targetLevel, b, out)
	collectHTMIDs(t2, 4*id+2, curLevel+1, targetLevel, b, out)
	collectHTMIDs(t3, 4*id+3, curLevel+1, targetLevel, b, out)
}
