package duplicator

import (
	"fmt"

	"github.com/lsst/qserv-sub016/internal/csvedit"
	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

// PositionFields names the lon/lat input columns of one position
// (partitioning or secondary).
type PositionFields struct {
	LonField string
	LatField string
}

// Config configures the duplicator worker and its driver.
type Config struct {
	Format              csvedit.Config
	RecordIDField       string
	PartitioningIDField string // optional; empty means sampling keys off RecordIDField
	PartPosition        PositionFields
	SecondaryPositions  []PositionFields

	ChunkIDField    string // output-only column name, e.g. "chunkId"
	SubChunkIDField string // output-only column name, e.g. "subChunkId"

	Level    int
	InDir    string
	InNodes  int
	OutDir   string
	OutNodes int
	Compress bool

	// TargetChunks restricts duplication to these chunk ids; empty means
	// every chunk in the layout.
	TargetChunks []int32

	Sampling SamplingConfig
}

// Validate checks required options and value ranges.
func (c Config) Validate() error {
	if c.Level < 0 || c.Level > geom.MaxHTMLevel {
		return fmt.Errorf("duplicator: htm level %d out of range [0,%d]: %w", c.Level, geom.MaxHTMLevel, qerr.ErrConfig)
	}
	if c.InDir == "" || c.OutDir == "" {
		return fmt.Errorf("duplicator: in.dir and out.dir are required: %w", qerr.ErrConfig)
	}
	if c.InNodes < 1 || c.InNodes > 99999 || c.OutNodes < 1 || c.OutNodes > 99999 {
		return fmt.Errorf("duplicator: node counts out of range [1,99999]: %w", qerr.ErrConfig)
	}
	if c.RecordIDField == "" || c.PartPosition.LonField == "" || c.PartPosition.LatField == "" {
		return fmt.Errorf("duplicator: id and partitioning position fields are required: %w", qerr.ErrConfig)
	}
	if c.ChunkIDField == "" || c.SubChunkIDField == "" {
		return fmt.Errorf("duplicator: chunkId/subChunkId output field names are required: %w", qerr.ErrConfig)
	}
	return c.Sampling.Validate()
}
