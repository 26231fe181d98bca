package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCartesianSpherical(t *testing.T) {
	v := Cartesian(45, 45)
	require.InDelta(t, 0.5, v.X, 1e-15)
	require.InDelta(t, 0.5, v.Y, 1e-15)
	require.InDelta(t, math.Sin(45*radPerDeg), v.Z, 1e-15)

	lon, lat := Spherical(Vec3{1, 1, math.Sqrt2})
	require.InDelta(t, 45, lon, 1e-13)
	require.InDelta(t, 45, lat, 1e-13)
}

func TestHTMIDRootVertex(t *testing.T) {
	v := Vec3{1, 0, 0}
	id1, err := HTMID(v, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(50), id1)

	id0, err := HTMID(v, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(12), id0)
}

func TestHTMRoundtrip(t *testing.T) {
	vecs := []Vec3{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {-1, 0, 0}, {0, -1, 0}, {0, 0, -1},
		Cartesian(37, -12).Normalized(), Cartesian(200, 60).Normalized(), Cartesian(359, -89).Normalized(),
	}
	for _, v := range vecs {
		for level := 0; level <= MaxHTMLevel; level++ {
			id, err := HTMID(v, level)
			require.NoError(t, err)
			got := HTMLevel(id)
			require.Equal(t, level, got, "vec=%v level=%d id=%#x", v, level, id)
		}
	}
}

func TestHTMLevelRejectsIllFormed(t *testing.T) {
	require.Equal(t, -1, HTMLevel(0))
	require.Equal(t, -1, HTMLevel(1))
	require.Equal(t, -1, HTMLevel(7))
	require.Equal(t, 0, HTMLevel(8))
	require.Equal(t, 0, HTMLevel(15))
}

func TestChildrenIDs(t *testing.T) {
	c := Children(12)
	require.Equal(t, [4]uint32{48, 49, 50, 51}, c)
}

func TestAreaSubdivision(t *testing.T) {
	for _, r := range roots {
		parent, err := NewTriangle(r.vertices[0], r.vertices[1], r.vertices[2])
		require.NoError(t, err)
		parentArea := parent.Area()

		t0, t1, t2, t3 := subdivide(r.vertices)
		var sum float64
		for _, tv := range [][3]Vec3{t0, t1, t2, t3} {
			tri, err := NewTriangle(tv[0], tv[1], tv[2])
			require.NoError(t, err)
			sum += tri.Area()
		}
		require.InDelta(t, parentArea, sum, 1e-14*parentArea)
	}
}

func TestSphericalBoxWrap(t *testing.T) {
	b := NewBox(350, 10, -10, 10)
	require.True(t, b.Wraps())
	require.InDelta(t, 20, b.LonExtent(), 1e-12)
	require.True(t, b.Contains(359.5, 0))
}

func TestTriangleBoxMonotonicity(t *testing.T) {
	tri, err := TriangleFromHTMID(RootS0)
	require.NoError(t, err)

	box1 := NewBox(0, 90, -10, 10)
	box2 := NewBox(0, 170, -30, 30)

	a1, err := tri.IntersectionArea(box1)
	require.NoError(t, err)
	a2, err := tri.IntersectionArea(box2)
	require.NoError(t, err)
	require.LessOrEqual(t, a1, a2+1e-12)
}

func TestIntersectionAreaRejectsWideBox(t *testing.T) {
	tri, err := TriangleFromHTMID(RootS0)
	require.NoError(t, err)
	wide := NewBox(0, 200, -10, 10)
	_, err = tri.IntersectionArea(wide)
	require.ErrorIs(t, err, ErrLonExtentTooLarge)
}

func TestMaxAlphaRejectsOutOfRange(t *testing.T) {
	_, err := MaxAlpha(91, 0)
	require.Error(t, err)
}

func TestMaxAlphaPole(t *testing.T) {
	alpha, err := MaxAlpha(10, 85)
	require.NoError(t, err)
	require.Equal(t, 180.0, alpha)
}

func TestAngSepIdentical(t *testing.T) {
	v := Cartesian(12, 34)
	require.Equal(t, 0.0, AngSep(v, v))
}

func TestReduceLonWrap(t *testing.T) {
	require.Equal(t, 0.0, ReduceLon(360))
	require.InDelta(t, 0.0, ReduceLon(359.9999999999997), 1e-9)
	require.InDelta(t, 1.0, ReduceLon(361), 1e-12)
}
