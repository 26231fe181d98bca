package geom

import "fmt"

// Mat3 is a 3x3 matrix stored as three column vectors. For a
// SphericalTriangle, the columns are the triangle's three unit vertex
// vectors, and M^-1 * v yields v's spherical barycentric coordinates.
type Mat3 struct {
	Col0, Col1, Col2 Vec3
}

// NewMat3 builds a matrix from its three columns.
func NewMat3(c0, c1, c2 Vec3) Mat3 {
	return Mat3{Col0: c0, Col1: c1, Col2: c2}
}

// MulVec returns M*v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m.Col0.X*v.X + m.Col1.X*v.Y + m.Col2.X*v.Z,
		Y: m.Col0.Y*v.X + m.Col1.Y*v.Y + m.Col2.Y*v.Z,
		Z: m.Col0.Z*v.X + m.Col1.Z*v.Y + m.Col2.Z*v.Z,
	}
}

// MulMat returns M*n.
func (m Mat3) MulMat(n Mat3) Mat3 {
	return Mat3{
		Col0: m.MulVec(n.Col0),
		Col1: m.MulVec(n.Col1),
		Col2: m.MulVec(n.Col2),
	}
}

// row returns row i (0-based) of M as a Vec3 over the three columns.
func (m Mat3) row(i int) Vec3 {
	switch i {
	case 0:
		return Vec3{m.Col0.X, m.Col1.X, m.Col2.X}
	case 1:
		return Vec3{m.Col0.Y, m.Col1.Y, m.Col2.Y}
	default:
		return Vec3{m.Col0.Z, m.Col1.Z, m.Col2.Z}
	}
}

// adjugate returns the adjugate (classical adjoint) of M: the transpose
// of the cofactor matrix, expressed here directly in terms of the column
// cross products since that is both the idiom the determinant formula
// needs and avoids building a full cofactor matrix.
func (m Mat3) adjugate() Mat3 {
	a := m.Col1.Cross(m.Col2)
	b := m.Col2.Cross(m.Col0)
	c := m.Col0.Cross(m.Col1)
	// adj(M)'s rows are a, b, c, stored here column by column.
	return Mat3{Col0: Vec3{a.X, b.X, c.X}, Col1: Vec3{a.Y, b.Y, c.Y}, Col2: Vec3{a.Z, b.Z, c.Z}}
}

// Det returns the determinant of M, computed as the dot of row 0 with
// the first column of the adjugate (cofactor expansion along row 0).
func (m Mat3) Det() float64 {
	adj := m.adjugate()
	return m.row(0).Dot(adj.Col0)
}

// Inverse returns M^-1 via the adjugate/determinant formula. Returns an
// error if M is singular (|det| below a small absolute tolerance).
func (m Mat3) Inverse() (Mat3, error) {
	det := m.Det()
	if det > -1e-15 && det < 1e-15 {
		return Mat3{}, fmt.Errorf("geom: singular matrix (det=%g)", det)
	}
	adj := m.adjugate()
	inv := 1 / det
	return Mat3{
		Col0: adj.Col0.Scale(inv),
		Col1: adj.Col1.Scale(inv),
		Col2: adj.Col2.Scale(inv),
	}, nil
}
