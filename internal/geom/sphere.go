package geom

import (
	"fmt"
	"math"
)

const (
	degPerRad = 180 / math.Pi
	radPerDeg = math.Pi / 180
	// lonWrapEpsilonDeg is epsilon used by ReduceLon, expressed as 1
	// milliarcsecond in degrees.
	lonWrapEpsilonDeg = 1.0 / 3600.0 / 1000.0
)

// Cartesian converts (lonDeg, latDeg) on the unit sphere to a Vec3.
func Cartesian(lonDeg, latDeg float64) Vec3 {
	lon := lonDeg * radPerDeg
	lat := latDeg * radPerDeg
	cosLat := math.Cos(lat)
	return Vec3{
		X: cosLat * math.Cos(lon),
		Y: cosLat * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

// Spherical converts v to (lonDeg in [0,360), latDeg in [-90,90]).
func Spherical(v Vec3) (lonDeg, latDeg float64) {
	n := v.Norm()
	if n == 0 {
		return 0, 0
	}
	lat := math.Asin(clamp(v.Z/n, -1, 1)) * degPerRad
	lon := math.Atan2(v.Y, v.X) * degPerRad
	if lon < 0 {
		lon += 360
	}
	return ReduceLon(lon), lat
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ReduceLon maps x into [0,360), treating anything within
// lonWrapEpsilonDeg of 360 as 0, matching the partitioner's tolerance for
// numerical wraparound jitter (1 milliarcsecond).
func ReduceLon(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	if x >= 360-lonWrapEpsilonDeg {
		return 0
	}
	return x
}

// AngSep returns the angular separation between u and v in radians,
// computed via atan2(|u x v|, u.v) for numerical stability near 0 and pi;
// returns exactly 0 when u and v are identical even if floating-point
// error would otherwise make the cross product collapse to a tiny
// nonzero vector whose norm could disagree in sign with the dot product.
func AngSep(u, v Vec3) float64 {
	if u == v {
		return 0
	}
	cross := u.Cross(v).Norm()
	dot := u.Dot(v)
	return math.Atan2(cross, dot)
}

// MaxAlpha returns the longitude half-extent, in degrees, of a circle of
// angular radius rDeg centered at (0, latDeg). Returns 180 if the circle
// reaches or crosses a pole. Returns an error if rDeg is outside [0,90].
func MaxAlpha(rDeg, latDeg float64) (float64, error) {
	if rDeg < 0 || rDeg > 90 {
		return 0, fmt.Errorf("geom: radius %g out of range [0,90]", rDeg)
	}
	if rDeg == 0 {
		return 0, nil
	}
	r := rDeg * radPerDeg
	lat := latDeg * radPerDeg
	if math.Abs(lat)+r >= math.Pi/2-1e-15 {
		return 180, nil
	}
	// The widest longitude offset is where a meridian is tangent to the
	// circle: sin(alpha) = sin(r) / cos(lat).
	s := math.Sin(r) / math.Cos(lat)
	if s >= 1 {
		return 180, nil
	}
	return math.Asin(s) * degPerRad, nil
}
