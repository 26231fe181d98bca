package duplicator

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// SamplingConfig controls the deterministic row-discard predicate used
// to synthesize a smaller duplicate of a region.
type SamplingConfig struct {
	Seed     uint64
	Fraction float64 // keep fraction in (0,1]; Fraction<=0 disables sampling
}

// Enabled reports whether sampling is on (Fraction > 0).
func (c SamplingConfig) Enabled() bool { return c.Fraction > 0 }

// Validate checks Fraction is in (0,1] when sampling is enabled.
func (c SamplingConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Fraction > 1 {
		return fmt.Errorf("duplicator: sampling fraction %g not in (0,1]: %w", c.Fraction, ErrInvalidSamplingFraction)
	}
	return nil
}

// ErrInvalidSamplingFraction is returned when Fraction falls outside
// (0,1].
var ErrInvalidSamplingFraction = fmt.Errorf("%w: sampling fraction must be in (0,1]", qerr.ErrInvalidArg)

// keep reports whether a row keyed by id survives sampling:
// hash(id^seed) <= floor(fraction * 2^64).
func (c SamplingConfig) keep(id uint64) bool {
	if !c.Enabled() || c.Fraction >= 1 {
		return true
	}
	threshold := uint64(math.Floor(c.Fraction * float64(math.MaxUint64)))
	return hashUint64(id^c.Seed) <= threshold
}

func hashUint64(v uint64) uint64 {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}
