// Package chunker maps (lon,lat) positions to the (chunkId, subChunkId)
// layout used to distribute a sky catalog across worker nodes: the
// sphere is divided into latitude stripes, stripes into sub-stripes, and
// each stripe/sub-stripe into an integer number of longitude chunks/
// sub-chunks sized to stay roughly square near the poles.
package chunker

import (
	"fmt"
	"math"
	"sort"

	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

// ChunkLocation identifies a (sub)chunk a record belongs to, and whether
// this is the record's primary location or an overlap-region copy.
type ChunkLocation struct {
	ChunkID    int32
	SubChunkID int32
	Overlap    bool
}

// Config configures a Chunker.
type Config struct {
	OverlapDeg             float64
	NumStripes             int
	NumSubStripesPerStripe int
}

// Chunker maps sky positions to chunk/sub-chunk ids and back.
type Chunker struct {
	cfg           Config
	stripeHeight  float64
	chunksPerStripe []int32
	firstChunkID    []int32 // cumulative offsets, len == NumStripes+1
}

// New validates cfg and builds a Chunker.
func New(cfg Config) (*Chunker, error) {
	if cfg.NumStripes <= 0 {
		return nil, fmt.Errorf("chunker: numStripes must be positive: %w", qerr.ErrConfig)
	}
	if cfg.NumSubStripesPerStripe <= 0 {
		return nil, fmt.Errorf("chunker: numSubStripesPerStripe must be positive: %w", qerr.ErrConfig)
	}
	if cfg.OverlapDeg < 0 {
		return nil, fmt.Errorf("chunker: overlap must be non-negative: %w", qerr.ErrConfig)
	}
	c := &Chunker{cfg: cfg, stripeHeight: 180.0 / float64(cfg.NumStripes)}
	c.chunksPerStripe = make([]int32, cfg.NumStripes)
	c.firstChunkID = make([]int32, cfg.NumStripes+1)
	for i := 0; i < cfg.NumStripes; i++ {
		n := c.numChunksForStripe(i)
		c.chunksPerStripe[i] = n
		c.firstChunkID[i+1] = c.firstChunkID[i] + n
	}
	return c, nil
}

func (c *Chunker) stripeLatRange(i int) (latMin, latMax float64) {
	latMin = -90 + float64(i)*c.stripeHeight
	latMax = latMin + c.stripeHeight
	return
}

// numChunksForStripe returns the number of longitude chunks for stripe i,
// chosen so the chunk's angular width (projected by cos of the stripe's
// most poleward edge) is >= the stripe height, matching spec §3.5.
func (c *Chunker) numChunksForStripe(i int) int32 {
	latMin, latMax := c.stripeLatRange(i)
	edge := math.Max(math.Abs(latMin), math.Abs(latMax))
	cosEdge := math.Cos(edge * math.Pi / 180)
	if cosEdge < 1e-9 {
		return 1
	}
	n := int32(math.Floor(360 * cosEdge / c.stripeHeight))
	if n < 1 {
		n = 1
	}
	return n
}

// NumStripes returns the configured stripe count.
func (c *Chunker) NumStripes() int { return c.cfg.NumStripes }

// StripeHeight returns 180/numStripes.
func (c *Chunker) StripeHeight() float64 { return c.stripeHeight }

// NumChunks returns the total number of chunks over the whole sphere.
func (c *Chunker) NumChunks() int32 { return c.firstChunkID[c.cfg.NumStripes] }

// stripeForChunk returns the stripe index owning chunkId, via binary
// search over the cumulative firstChunkID offsets.
func (c *Chunker) stripeForChunk(chunkID int32) (int, error) {
	if chunkID < 0 || chunkID >= c.NumChunks() {
		return 0, fmt.Errorf("chunker: chunk id %d out of range [0,%d): %w", chunkID, c.NumChunks(), qerr.ErrInvalidArg)
	}
	i := sort.Search(c.cfg.NumStripes, func(i int) bool { return c.firstChunkID[i+1] > chunkID })
	return i, nil
}

// Valid reports whether chunkID is a valid chunk id for this layout.
func (c *Chunker) Valid(chunkID int32) bool {
	_, err := c.stripeForChunk(chunkID)
	return err == nil
}

// GetChunkBounds returns the SphericalBox covering chunkId.
func (c *Chunker) GetChunkBounds(chunkID int32) (geom.SphericalBox, error) {
	i, err := c.stripeForChunk(chunkID)
	if err != nil {
		return geom.SphericalBox{}, err
	}
	latMin, latMax := c.stripeLatRange(i)
	n := c.chunksPerStripe[i]
	localC := chunkID - c.firstChunkID[i]
	lonWidth := 360.0 / float64(n)
	lonMin := float64(localC) * lonWidth
	lonMax := lonMin + lonWidth
	return geom.NewBox(lonMin, lonMax, latMin, latMax), nil
}

// subStripeHeight returns the height of each sub-stripe within a stripe.
func (c *Chunker) subStripeHeight() float64 {
	return c.stripeHeight / float64(c.cfg.NumSubStripesPerStripe)
}

// numSubChunksForSubStripe returns the number of sub-chunks per chunk in
// sub-stripe j of stripe i, sized by the same width rule as chunks.
func (c *Chunker) numSubChunksForSubStripe(i, j int, lonWidth float64) int32 {
	latMin, _ := c.stripeLatRange(i)
	subH := c.subStripeHeight()
	subLatMin := latMin + float64(j)*subH
	subLatMax := subLatMin + subH
	edge := math.Max(math.Abs(subLatMin), math.Abs(subLatMax))
	cosEdge := math.Cos(edge * math.Pi / 180)
	if cosEdge < 1e-9 {
		return 1
	}
	n := int32(math.Floor(lonWidth * cosEdge / subH))
	if n < 1 {
		n = 1
	}
	return n
}

// subChunkOffsets returns, for chunk's stripe i, the per-sub-stripe
// sub-chunk counts and their cumulative offsets (subChunkId base for
// each sub-stripe j).
func (c *Chunker) subChunkOffsets(i int, lonWidth float64) (counts []int32, offsets []int32) {
	counts = make([]int32, c.cfg.NumSubStripesPerStripe)
	offsets = make([]int32, c.cfg.NumSubStripesPerStripe+1)
	for j := 0; j < c.cfg.NumSubStripesPerStripe; j++ {
		counts[j] = c.numSubChunksForSubStripe(i, j, lonWidth)
		offsets[j+1] = offsets[j] + counts[j]
	}
	return
}

// GetSubChunkBounds returns the SphericalBox covering (chunkId,subChunkId).
func (c *Chunker) GetSubChunkBounds(chunkID, subChunkID int32) (geom.SphericalBox, error) {
	i, err := c.stripeForChunk(chunkID)
	if err != nil {
		return geom.SphericalBox{}, err
	}
	n := c.chunksPerStripe[i]
	localC := chunkID - c.firstChunkID[i]
	lonWidth := 360.0 / float64(n)
	chunkLonMin := float64(localC) * lonWidth

	_, offsets := c.subChunkOffsets(i, lonWidth)
	total := offsets[len(offsets)-1]
	if subChunkID < 0 || subChunkID >= total {
		return geom.SphericalBox{}, fmt.Errorf("chunker: sub-chunk id %d out of range [0,%d): %w", subChunkID, total, qerr.ErrInvalidArg)
	}
	j := sort.Search(c.cfg.NumSubStripesPerStripe, func(j int) bool { return offsets[j+1] > subChunkID })

	latMin, _ := c.stripeLatRange(i)
	subH := c.subStripeHeight()
	subLatMin := latMin + float64(j)*subH
	subLatMax := subLatMin + subH

	counts, _ := c.subChunkOffsets(i, lonWidth)
	k := subChunkID - offsets[j]
	subLonWidth := lonWidth / float64(counts[j])
	subLonMin := chunkLonMin + float64(k)*subLonWidth
	subLonMax := subLonMin + subLonWidth
	return geom.NewBox(subLonMin, subLonMax, subLatMin, subLatMax), nil
}

// locateIn finds the (stripe,chunk-local,sub-stripe,sub-chunk-local)
// indices of pos within this layout (ignoring overlap).
func (c *Chunker) locateIn(lon, lat float64) (stripe int, localChunk int32, subStripe int, localSub int32) {
	stripe = int((lat + 90) / c.stripeHeight)
	if stripe >= c.cfg.NumStripes {
		stripe = c.cfg.NumStripes - 1
	}
	if stripe < 0 {
		stripe = 0
	}
	n := c.chunksPerStripe[stripe]
	lonWidth := 360.0 / float64(n)
	localChunk = int32(lon / lonWidth)
	if localChunk >= n {
		localChunk = n - 1
	}

	latMin, _ := c.stripeLatRange(stripe)
	subH := c.subStripeHeight()
	subStripe = int((lat - latMin) / subH)
	if subStripe >= c.cfg.NumSubStripesPerStripe {
		subStripe = c.cfg.NumSubStripesPerStripe - 1
	}
	if subStripe < 0 {
		subStripe = 0
	}
	counts, _ := c.subChunkOffsets(stripe, lonWidth)
	chunkLonMin := float64(localChunk) * lonWidth
	subLonWidth := lonWidth / float64(counts[subStripe])
	localSub = int32((lon - chunkLonMin) / subLonWidth)
	if localSub >= counts[subStripe] {
		localSub = counts[subStripe] - 1
	}
	if localSub < 0 {
		localSub = 0
	}
	return
}

func mod32(a, n int32) int32 {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// Locate appends to out the primary (chunk,subChunk) location containing
// pos, plus every (chunk,subChunk) among pos's stripe/chunk/sub-chunk
// neighbors whose overlap-expanded bounds also contain pos. chunkHint is
// accepted for API compatibility with the original partitioner (a
// previously-located chunk id that search may start near); this
// implementation recomputes from scratch, since the layout's neighbor
// set is always small.
func (c *Chunker) Locate(lonDeg, latDeg float64, chunkHint int32, out []ChunkLocation) []ChunkLocation {
	_ = chunkHint
	lon := geom.ReduceLon(lonDeg)
	stripe, localChunk, _, _ := c.locateIn(lon, latDeg)
	chunkID := c.firstChunkID[stripe] + localChunk

	seen := map[ChunkLocation]bool{}
	add := func(loc ChunkLocation) {
		key := loc
		key.Overlap = false
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, loc)
	}

	for _, si := range c.neighborStripes(stripe) {
		n := c.chunksPerStripe[si]
		siLonWidth := 360.0 / float64(n)
		siLocalChunk := int32(lon / siLonWidth)
		if siLocalChunk >= n {
			siLocalChunk = n - 1
		}
		for _, dc := range []int32{-1, 0, 1} {
			lc := mod32(siLocalChunk+dc, n)
			cid := c.firstChunkID[si] + lc
			counts, offsets := c.subChunkOffsets(si, siLonWidth)
			chunkLonMin := float64(lc) * siLonWidth
			for j := 0; j < c.cfg.NumSubStripesPerStripe; j++ {
				for k := int32(0); k < counts[j]; k++ {
					subLonWidth := siLonWidth / float64(counts[j])
					subLonMin := chunkLonMin + float64(k)*subLonWidth
					subLonMax := subLonMin + subLonWidth
					latMin, _ := c.stripeLatRange(si)
					subH := c.subStripeHeight()
					subLatMin := latMin + float64(j)*subH
					subLatMax := subLatMin + subH
					box := geom.NewBox(subLonMin, subLonMax, subLatMin, subLatMax)
					subChunkID := offsets[j] + k

					isPrimary := cid == chunkID && box.Contains(lon, latDeg)
					if isPrimary {
						add(ChunkLocation{ChunkID: cid, SubChunkID: subChunkID, Overlap: false})
						continue
					}
					if c.cfg.OverlapDeg <= 0 {
						continue
					}
					expanded := box.Expand(c.cfg.OverlapDeg)
					if expanded.Contains(lon, latDeg) {
						add(ChunkLocation{ChunkID: cid, SubChunkID: subChunkID, Overlap: true})
					}
				}
			}
		}
	}
	return out
}

func (c *Chunker) neighborStripes(stripe int) []int {
	out := []int{stripe}
	if stripe > 0 {
		out = append(out, stripe-1)
	}
	if stripe < c.cfg.NumStripes-1 {
		out = append(out, stripe+1)
	}
	return out
}

// ChunksIntersecting enumerates all chunk ids whose bounds (expanded by
// overlapDeg if > 0) intersect box.
func (c *Chunker) ChunksIntersecting(box geom.SphericalBox, overlapDeg float64) ([]int32, error) {
	var out []int32
	for cid := int32(0); cid < c.NumChunks(); cid++ {
		bounds, err := c.GetChunkBounds(cid)
		if err != nil {
			return nil, err
		}
		if overlapDeg > 0 {
			bounds = bounds.Expand(overlapDeg)
		}
		if bounds.Intersects(box) {
			out = append(out, cid)
		}
	}
	return out, nil
}
