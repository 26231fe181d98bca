// Package geom implements the pure-function spherical geometry core:
// Vec3/Mat3 linear algebra, the Hierarchical Triangular Mesh (HTM) index,
// SphericalBox, and SphericalTriangle. Functions here are allocation-free
// on the hot path and never touch the filesystem or a logger.
package geom

import "math"

// Vec3 is an ordered triple of 64-bit floats, used both as a free vector
// and as a point on (or off) the unit sphere.
type Vec3 struct {
	X, Y, Z float64
}

// Dot returns the dot product of u and v.
func (u Vec3) Dot(v Vec3) float64 {
	return u.X*v.X + u.Y*v.Y + u.Z*v.Z
}

// Cross returns the cross product u x v.
func (u Vec3) Cross(v Vec3) Vec3 {
	return Vec3{
		X: u.Y*v.Z - u.Z*v.Y,
		Y: u.Z*v.X - u.X*v.Z,
		Z: u.X*v.Y - u.Y*v.X,
	}
}

// Add returns u + v.
func (u Vec3) Add(v Vec3) Vec3 {
	return Vec3{u.X + v.X, u.Y + v.Y, u.Z + v.Z}
}

// Sub returns u - v.
func (u Vec3) Sub(v Vec3) Vec3 {
	return Vec3{u.X - v.X, u.Y - v.Y, u.Z - v.Z}
}

// Scale returns u scaled by s.
func (u Vec3) Scale(s float64) Vec3 {
	return Vec3{u.X * s, u.Y * s, u.Z * s}
}

// Norm returns the Euclidean (L2) norm of u.
func (u Vec3) Norm() float64 {
	return math.Sqrt(u.Dot(u))
}

// Normalized returns u scaled to unit length; a zero vector is returned
// unchanged.
func (u Vec3) Normalized() Vec3 {
	n := u.Norm()
	if n == 0 {
		return u
	}
	return u.Scale(1 / n)
}

// Mid returns the unnormalized midpoint of u and v, i.e. u+v. Used by the
// HTM subdivision recipe, which normalizes edge midpoints itself.
func (u Vec3) Mid(v Vec3) Vec3 {
	return u.Add(v)
}
