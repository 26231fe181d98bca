package duplicator

import "github.com/lsst/qserv-sub016/internal/geom"

// rotation returns the 3x3 transform that carries points from source
// triangle S onto target triangle T: barycentricTransform(S) expresses
// a cartesian vector in S's barycentric coordinates, and
// cartesianTransform(T) converts barycentric coordinates back to
// cartesian space using T's vertices. If S and T are the same triangle
// the transform is (numerically) the identity.
func rotation(s, t geom.SphericalTriangle) geom.Mat3 {
	return t.M.MulMat(s.Minv)
}

// apply rotates v (a unit Cartesian vector) from S's frame into T's,
// renormalizing the result back onto the unit sphere to cancel
// floating-point drift.
func apply(m geom.Mat3, v geom.Vec3) geom.Vec3 {
	return m.MulVec(v).Normalized()
}
