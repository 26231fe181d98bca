package geom

import (
	"fmt"
	"math/bits"
)

// MaxHTMLevel is the highest supported HTM subdivision level. Beyond this,
// ids would no longer fit comfortably in 32 bits with a leading type
// nibble, and the chunk sizes the partitioner targets (tenths of a
// degree) never need it.
const MaxHTMLevel = 13

// levelError is returned by HTMID and SphericalBox.HTMIDs for a level
// outside [0, MaxHTMLevel].
type levelError struct{ level int }

func (e levelError) Error() string {
	return fmt.Sprintf("geom: invalid htm level %d (want [0,%d])", e.level, MaxHTMLevel)
}

// root triangle vertex indices, named the way the HTM literature and the
// original partitioner do: S0..S3 (southern hemisphere), N0..N3 (northern).
// Each root is a triplet of axis-aligned unit vectors.
var (
	v0 = Vec3{1, 0, 0}
	v1 = Vec3{0, 1, 0}
	v2 = Vec3{-1, 0, 0}
	v3 = Vec3{0, -1, 0}
	v4 = Vec3{0, 0, 1}
	v5 = Vec3{0, 0, -1}
)

// rootTriangle describes one of the 8 level-0 HTM triangles: its 3
// vertices in winding order and its HTM id (8..15, the "type 8" nibble).
type rootTriangle struct {
	id       uint32
	vertices [3]Vec3
}

// roots holds the 8 root triangles in the order HTMID probes them: all 4
// northern roots before the southern ones. The 6 cardinal axis points sit
// exactly on a shared vertex of 4 roots at once, and sameSide's
// boundary-inclusive tolerance accepts all of them; checking north first
// is what makes those ties resolve to a single, fixed root instead of
// whichever one happens to have the smallest id.
//
// N0's vertices are listed pole-first, not pole-second like the rest: it
// puts X = (1,0,0) at index 2, so the child containing it is N0's *third*
// child rather than its first.
var roots = [8]rootTriangle{
	{8 + 4, [3]Vec3{v4, v3, v0}}, // N0 = (Z, -Y, X)
	{8 + 5, [3]Vec3{v3, v4, v2}}, // N1 = (-Y, Z, -X)
	{8 + 6, [3]Vec3{v2, v4, v1}}, // N2 = (-X, Z, Y)
	{8 + 7, [3]Vec3{v1, v4, v0}}, // N3 = (Y, Z, X)
	{8 + 0, [3]Vec3{v0, v5, v1}}, // S0 = (X, -Z, Y)
	{8 + 1, [3]Vec3{v1, v5, v2}}, // S1 = (Y, -Z, -X)
	{8 + 2, [3]Vec3{v2, v5, v3}}, // S2 = (-X, -Z, -Y)
	{8 + 3, [3]Vec3{v3, v5, v0}}, // S3 = (-Y, -Z, X)
}

// Exported names for the 8 roots, matching the HTM convention S0-S3/N0-N3.
const (
	RootS0 = 8 + 0
	RootS1 = 8 + 1
	RootS2 = 8 + 2
	RootS3 = 8 + 3
	RootN0 = 8 + 4
	RootN1 = 8 + 5
	RootN2 = 8 + 6
	RootN3 = 8 + 7
)

// childVertices computes the midpoints of a triangle's edges, normalized
// back onto the unit sphere, in the order used by the standard
// quadrisection: w0 is opposite v0 (midpoint of v1,v2), etc.
func childVertices(v [3]Vec3) (w0, w1, w2 Vec3) {
	w0 = v[1].Mid(v[2]).Normalized()
	w1 = v[2].Mid(v[0]).Normalized()
	w2 = v[0].Mid(v[1]).Normalized()
	return
}

// subdivide returns the 4 children of triangle v in standard HTM winding:
// T0 = (v0,w2,w1), T1 = (v1,w0,w2), T2 = (v2,w1,w0), T3 = (w0,w1,w2).
func subdivide(v [3]Vec3) (t0, t1, t2, t3 [3]Vec3) {
	w0, w1, w2 := childVertices(v)
	t0 = [3]Vec3{v[0], w2, w1}
	t1 = [3]Vec3{v[1], w0, w2}
	t2 = [3]Vec3{v[2], w1, w0}
	t3 = [3]Vec3{w0, w1, w2}
	return
}

// locate descends from a level-0 root to the triangle at the given level
// containing point p, returning the full path of 2-bit child selectors
// (most significant subdivision first) and the final triangle's
// vertices.
func locate(root [3]Vec3, p Vec3, level int) (path []uint32, leaf [3]Vec3) {
	path = make([]uint32, 0, level)
	cur := root
	for i := 0; i < level; i++ {
		t0, t1, t2, t3 := subdivide(cur)
		switch {
		case sameSide(p, cur, t0):
			cur, path = t0, append(path, 0)
		case sameSide(p, cur, t1):
			cur, path = t1, append(path, 1)
		case sameSide(p, cur, t2):
			cur, path = t2, append(path, 2)
		default:
			cur, path = t3, append(path, 3)
		}
	}
	return path, cur
}

// sameSide reports whether p lies within the (closed) spherical triangle
// t, tested via the three half-space sign tests against t's own edges.
// Because t is itself a sub-triangle of the parent being descended, this
// is the decisive test once candidates have been narrowed by subdivide.
func sameSide(p Vec3, _ [3]Vec3, t [3]Vec3) bool {
	e01 := t[0].Cross(t[1])
	e12 := t[1].Cross(t[2])
	e20 := t[2].Cross(t[0])
	// For a positively-wound triangle, p is inside iff p is on the same
	// side as the triangle's own interior (i.e. the normals point
	// outward consistently, so all three dot products share sign with
	// the centroid's).
	c := t[0].Add(t[1]).Add(t[2])
	return signAgrees(e01.Dot(p), e01.Dot(c)) &&
		signAgrees(e12.Dot(p), e12.Dot(c)) &&
		signAgrees(e20.Dot(p), e20.Dot(c))
}

func signAgrees(a, b float64) bool {
	if b >= 0 {
		return a >= -1e-13
	}
	return a <= 1e-13
}

// HTMID descends the triangle tree to locate v's level-L HTM id.
// v need not be normalized. Returns an error if L is outside
// [0, MaxHTMLevel].
func HTMID(v Vec3, level int) (uint32, error) {
	if level < 0 || level > MaxHTMLevel {
		return 0, levelError{level}
	}
	v = v.Normalized()

	var bestRoot rootTriangle
	found := false
	for _, r := range roots {
		if sameSide(v, [3]Vec3{}, r.vertices) {
			bestRoot = r
			found = true
			break
		}
	}
	if !found {
		// Numerical edge case: point exactly on a root boundary. Fall
		// back to the nearest root by centroid angle.
		bestRoot = nearestRoot(v)
	}

	id := bestRoot.id
	path, _ := locate(bestRoot.vertices, v, level)
	for _, k := range path {
		id = 4*id + k
	}
	return id, nil
}

func nearestRoot(v Vec3) rootTriangle {
	best := roots[0]
	bestDot := -2.0
	for _, r := range roots {
		c := r.vertices[0].Add(r.vertices[1]).Add(r.vertices[2]).Normalized()
		if d := c.Dot(v); d > bestDot {
			bestDot = d
			best = r
		}
	}
	return best
}

// HTMLevel returns the subdivision level encoded in id, or -1 if id is
// not a well-formed HTM id (no leading 1-bit positioned at a multiple-
// of-2 bit offset within a trailing type-8 nibble, as produced by
// HTMID/children).
func HTMLevel(id uint32) int {
	if id == 0 {
		return -1
	}
	// Strip trailing zero-pairs is wrong for odd bit counts; instead
	// find the position of the highest set bit and verify it sits in
	// the leading nibble as a single set bit (value 8-15 range once
	// shifted down), with the remaining bits forming whole 2-bit groups.
	hi := bits.Len32(id) - 1 // index of highest set bit
	if hi < 3 {
		return -1 // smaller than the smallest valid root id (8)
	}
	// The number of bits below the leading nibble's low bit must be a
	// multiple of 2 (each level contributes exactly 2 bits).
	remBits := hi - 3
	if remBits%2 != 0 {
		return -1
	}
	level := remBits / 2
	if level > MaxHTMLevel {
		return -1
	}
	// Leading nibble (bits hi-3..hi, i.e. top 4 bits of the id once
	// right-shifted by remBits) must fall in [8,15] with exactly one
	// bit set at position hi: already guaranteed by hi being the
	// highest bit and nibble width 4. Verify no stray bits above hi+1
	// (impossible since hi is defined as highest set bit) and that the
	// nibble's value (id >> remBits) is in [8,15].
	nibble := id >> uint(remBits)
	if nibble < 8 || nibble > 15 {
		return -1
	}
	return level
}

// Children returns the 4 HTM ids of id's immediate children: 4*id+0..3.
func Children(id uint32) [4]uint32 {
	return [4]uint32{4 * id, 4*id + 1, 4*id + 2, 4*id + 3}
}

// Parent returns id's parent (id/4) and true, or (0,false) if id is a
// root (no parent within the mesh).
func Parent(id uint32) (uint32, bool) {
	if id < 8 || id > 15 {
		return id / 4, true
	}
	return 0, false
}

// Triangle reconstructs the three unit vertices of the spherical
// triangle named by id by replaying the subdivision recipe from its
// root. Returns an error if id is not well-formed.
func Triangle(id uint32) ([3]Vec3, error) {
	level := HTMLevel(id)
	if level < 0 {
		return [3]Vec3{}, fmt.Errorf("geom: invalid htm id %#x", id)
	}
	rootID := id >> uint(2*level)
	var root rootTriangle
	found := false
	for _, r := range roots {
		if r.id == rootID {
			root, found = r, true
			break
		}
	}
	if !found {
		return [3]Vec3{}, fmt.Errorf("geom: invalid htm id %#x: unknown root %d", id, rootID)
	}
	cur := root.vertices
	for i := level - 1; i >= 0; i-- {
		k := (id >> uint(2*i)) & 3
		t0, t1, t2, t3 := subdivide(cur)
		switch k {
		case 0:
			cur = t0
		case 1:
			cur = t1
		case 2:
			cur = t2
		default:
			cur = t3
		}
	}
	return cur, nil
}
