package geom

import (
	"fmt"
	"math"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// SphericalTriangle is a spherical triangle stored as the 3x3 matrix M
// whose columns are its unit vertex vectors, plus its inverse. M^-1 * v
// yields v's spherical barycentric coordinates; M * b converts back.
type SphericalTriangle struct {
	M    Mat3
	Minv Mat3
}

// NewTriangle builds a SphericalTriangle from 3 unit vertex vectors.
func NewTriangle(v0, v1, v2 Vec3) (SphericalTriangle, error) {
	m := NewMat3(v0, v1, v2)
	inv, err := m.Inverse()
	if err != nil {
		return SphericalTriangle{}, fmt.Errorf("geom: degenerate triangle: %w", err)
	}
	return SphericalTriangle{M: m, Minv: inv}, nil
}

// TriangleFromHTMID reconstructs the SphericalTriangle named by id.
func TriangleFromHTMID(id uint32) (SphericalTriangle, error) {
	v, err := Triangle(id)
	if err != nil {
		return SphericalTriangle{}, err
	}
	return NewTriangle(v[0], v[1], v[2])
}

// Vertices returns the triangle's 3 unit vertex vectors.
func (t SphericalTriangle) Vertices() [3]Vec3 {
	return [3]Vec3{t.M.Col0, t.M.Col1, t.M.Col2}
}

// Barycentric returns v's spherical barycentric coordinates (b0,b1,b2)
// with respect to t, i.e. Minv * v.
func (t SphericalTriangle) Barycentric(v Vec3) Vec3 {
	return t.Minv.MulVec(v)
}

// FromBarycentric converts barycentric coordinates b back to a
// (generally non-unit) Cartesian vector, i.e. M * b.
func (t SphericalTriangle) FromBarycentric(b Vec3) Vec3 {
	return t.M.MulVec(b)
}

// Contains reports whether v (any nonzero vector, not necessarily unit)
// lies within the closed triangle, i.e. all 3 barycentric coordinates
// are non-negative (within tolerance).
func (t SphericalTriangle) Contains(v Vec3) bool {
	b := t.Barycentric(v)
	const eps = -1e-12
	return b.X >= eps && b.Y >= eps && b.Z >= eps
}

// Area returns the triangle's area via Girard's theorem: the sum of its
// 3 interior angles minus pi.
func (t SphericalTriangle) Area() float64 {
	v := t.Vertices()
	a0 := interiorAngle(v[0], v[1], v[2])
	a1 := interiorAngle(v[1], v[2], v[0])
	a2 := interiorAngle(v[2], v[0], v[1])
	return a0 + a1 + a2 - math.Pi
}

// interiorAngle returns the interior angle of the spherical triangle at
// vertex a, between edges a-b and a-c.
func interiorAngle(a, b, c Vec3) float64 {
	// Project b and c into the tangent plane at a by removing the
	// component along a, then take the angle between the projections.
	pb := b.Sub(a.Scale(a.Dot(b)))
	pc := c.Sub(a.Scale(a.Dot(c)))
	return AngSep(pb, pc)
}

// IntersectionArea returns the solid-angle area of the intersection of t
// with box. It requires box.LonExtent() <= 180; for wider boxes, callers
// must split the box into two <=180 halves (ErrLonExtentTooLarge is
// returned otherwise, matching the original partitioner's deferred
// "split is future work").
func (t SphericalTriangle) IntersectionArea(box SphericalBox) (float64, error) {
	if box.IsEmpty() {
		return 0, nil
	}
	if box.LonExtent() > 180+1e-9 {
		return 0, fmt.Errorf("geom: box longitude extent %.9g > 180: %w", box.LonExtent(), ErrLonExtentTooLarge)
	}

	vertices := t.Vertices()
	poly := vertices[:]
	// Clip against the two longitude half-spaces (great circles through
	// the poles at LonMin and LonMax), then the two latitude small
	// circles (z = sin(latMin), z = sin(latMax)).
	poly = clipLonMin(poly, box.LonMin)
	poly = clipLonMax(poly, box.LonMax, box.Wraps())
	if len(poly) == 0 {
		return 0, nil
	}
	area, err := polygonAreaBetweenLats(poly, math.Sin(box.LatMin*radPerDeg), math.Sin(box.LatMax*radPerDeg))
	if err != nil {
		return 0, err
	}
	if area < 0 {
		area = 0
	}
	return area, nil
}

// ErrLonExtentTooLarge is returned when IntersectionArea is asked to
// clip against a box whose longitude extent exceeds 180 degrees.
var ErrLonExtentTooLarge = fmt.Errorf("%w: box longitude extent exceeds 180 degrees, split required", qerr.ErrNotImplemented)

// clipLonMin clips poly (a convex spherical polygon given as a vertex
// list) to the half-space lon >= lonMinDeg, i.e. east of the meridian
// through the pole at that longitude.
func clipLonMin(poly []Vec3, lonMinDeg float64) []Vec3 {
	n := meridianNormal(lonMinDeg)
	return clipHalfSpace(poly, n)
}

// clipLonMax clips poly to the half-space lon <= lonMaxDeg (or, if
// wraps, the half-space on the other side, since a wrapping box's
// longitude is maximized going the "short way" through 0).
func clipLonMax(poly []Vec3, lonMaxDeg float64, wraps bool) []Vec3 {
	if lonMaxDeg == 360 || (lonMaxDeg == 0 && !wraps) {
		return poly
	}
	n := meridianNormal(lonMaxDeg).Scale(-1)
	return clipHalfSpace(poly, n)
}

// meridianNormal returns the outward normal (pointing toward increasing
// longitude) of the great circle through the poles at longitude lonDeg:
// the circle is { v : v.Y*cos(lon) - v.X*sin(lon) == 0 }, so points with
// lon slightly greater satisfy n.v >= 0 for n = (-sin(lon), cos(lon), 0).
func meridianNormal(lonDeg float64) Vec3 {
	lon := lonDeg * radPerDeg
	return Vec3{X: -math.Sin(lon), Y: math.Cos(lon), Z: 0}
}

// clipHalfSpace clips the convex spherical polygon poly to the
// half-space {v : n.Dot(v) >= 0} using a spherical Sutherland-Hodgman
// pass: for each edge, keep vertices with non-negative sign, and insert
// the great-circle crossing point where an edge changes sign.
func clipHalfSpace(poly []Vec3, n Vec3) []Vec3 {
	if len(poly) == 0 {
		return poly
	}
	var out []Vec3
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		da := n.Dot(a)
		db := n.Dot(b)
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			if x, ok := greatCircleCrossing(a, b, n); ok {
				out = append(out, x)
			}
		}
	}
	return out
}

// greatCircleCrossing finds the point on the great-circle arc from a to
// b where the plane n.v=0 is crossed, normalized back onto the sphere.
func greatCircleCrossing(a, b, n Vec3) (Vec3, bool) {
	// The arc a->b lies on the great circle with normal m = a x b. The
	// crossing point lies on both great circles, i.e. along m x n (up to
	// sign and scale); pick the sign that lies between a and b.
	m := a.Cross(b)
	d := m.Cross(n)
	if d.Norm() == 0 {
		return Vec3{}, false
	}
	d = d.Normalized()
	// Choose the sign of d closest to the arc midpoint.
	mid := a.Add(b)
	if d.Dot(mid) < 0 {
		d = d.Scale(-1)
	}
	return d, true
}

// polygonAreaBetweenLats integrates the Gauss-Bonnet turning-angle sum
// for the spherical polygon poly further clipped between the two small
// circles z=zMin and z=zMax, returning the enclosed area.
func polygonAreaBetweenLats(poly []Vec3, zMin, zMax float64) (float64, error) {
	poly = clipSmallCircle(poly, zMin, true)
	poly = clipSmallCircle(poly, zMax, false)
	if len(poly) < 3 {
		return 0, nil
	}
	return polygonArea(poly), nil
}

// clipSmallCircle clips poly to z >= zBound (keepAbove=true) or z <=
// zBound (keepAbove=false).
func clipSmallCircle(poly []Vec3, zBound float64, keepAbove bool) []Vec3 {
	if len(poly) == 0 {
		return poly
	}
	sign := func(v Vec3) float64 {
		if keepAbove {
			return v.Z - zBound
		}
		return zBound - v.Z
	}
	var out []Vec3
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		sa, sb := sign(a), sign(b)
		if sa >= 0 {
			out = append(out, a)
		}
		if (sa >= 0) != (sb >= 0) {
			if x, ok := smallCircleCrossing(a, b, zBound); ok {
				out = append(out, x)
			}
		}
	}
	return out
}

// smallCircleCrossing finds where the great-circle arc a->b crosses the
// small circle z=zBound, via linear interpolation of z followed by
// renormalization onto the sphere (exact for the arc's great circle
// since a and b are both unit vectors and the arc is short in our use,
// chunk-scale boxes).
func smallCircleCrossing(a, b Vec3, zBound float64) (Vec3, bool) {
	if a.Z == b.Z {
		return Vec3{}, false
	}
	t := (zBound - a.Z) / (b.Z - a.Z)
	if t < 0 || t > 1 {
		return Vec3{}, false
	}
	p := a.Add(b.Sub(a).Scale(t))
	if p.Norm() == 0 {
		return Vec3{}, false
	}
	return p.Normalized(), true
}

// polygonArea computes the spherical polygon's area via the Gauss-Bonnet
// turning-angle sum: Area = 2*pi - sum(exterior angles), equivalently
// sum(interior angles) - (n-2)*pi for an n-gon.
func polygonArea(poly []Vec3) float64 {
	n := len(poly)
	if n < 3 {
		return 0
	}
	var sumInterior float64
	for i := 0; i < n; i++ {
		prev := poly[(i-1+n)%n]
		cur := poly[i]
		next := poly[(i+1)%n]
		sumInterior += interiorAngle(cur, prev, next)
	}
	return sumInterior - float64(n-2)*math.Pi
}
