// Command duplicator rotates a source catalog's records onto every
// target chunk of a (possibly different) sky layout, implementing the
// §6.5 "Duplicator" CLI surface: it reads the htm-indexer's per-
// triangle files plus the source and partitioning htm_index.bin files,
// and writes per-chunk chunk_<id>[_overlap].txt files and a combined
// chunk_index.bin under --out.dir.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lsst/qserv-sub016/internal/chunker"
	"github.com/lsst/qserv-sub016/internal/cliflags"
	"github.com/lsst/qserv-sub016/internal/duplicator"
	"github.com/lsst/qserv-sub016/internal/geom"
	"github.com/lsst/qserv-sub016/internal/partfile"
	"github.com/lsst/qserv-sub016/internal/partidx"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "duplicator",
		Short:   "Rotate a source catalog's records onto a target chunk layout",
		Version: version,
		RunE:    run,
	}
	cliflags.Bind(cmd)

	cmd.Flags().String("in.dir", "", "htm-indexer output directory to read from")
	cmd.Flags().Int("in.num-nodes", 1, "number of node subdirectories under --in.dir")
	cmd.Flags().Int("htm.level", 8, "HTM subdivision level shared by --index and --part.index")
	cmd.Flags().String("index", "", "path to the source data's htm_index.bin")
	cmd.Flags().String("part.index", "", "path to the partitioning reference's htm_index.bin")
	cmd.Flags().String("part.chunk", "chunkId", "output column name for the chunk id")
	cmd.Flags().String("part.sub-chunk", "subChunkId", "output column name for the sub-chunk id")
	cmd.Flags().String("part.prefix", "", "optional prefix prepended to --part.chunk/--part.sub-chunk")
	cmd.Flags().Int("part.num-stripes", 0, "target layout stripe count")
	cmd.Flags().Int("part.num-sub-stripes", 0, "target layout sub-stripes per stripe")
	cmd.Flags().Float64("part.overlap", 0, "target layout overlap, in degrees")
	cmd.Flags().Uint64("sample.seed", 0, "sampling hash seed")
	cmd.Flags().Float64("sample.fraction", 0, "keep fraction in (0,1]; 0 disables sampling")
	cmd.Flags().Float64("lon-min", 0, "region filter: minimum longitude, in degrees")
	cmd.Flags().Float64("lon-max", 0, "region filter: maximum longitude, in degrees")
	cmd.Flags().Float64("lat-min", 0, "region filter: minimum latitude, in degrees")
	cmd.Flags().Float64("lat-max", 0, "region filter: maximum latitude, in degrees")
	cmd.Flags().String("chunk-id", "", "comma-separated explicit target chunk ids (overrides the region filter)")
	cmd.Flags().Int("out.node", -1, "if >= 0, restrict output to this single out.node shard")
	cmd.Flags().StringArray("pos", nil, "secondary position as \"lonField,latField\"; repeatable")
	cmd.Flags().Bool("compress", false, "zstd-compress the per-chunk .txt output")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	shared, err := cliflags.FromCmd(cmd)
	if err != nil {
		return err
	}
	logger := cliflags.Logger(shared.Verbose)

	level, _ := cmd.Flags().GetInt("htm.level")
	inDir, _ := cmd.Flags().GetString("in.dir")
	inNodes, _ := cmd.Flags().GetInt("in.num-nodes")
	indexPath, _ := cmd.Flags().GetString("index")
	partIndexPath, _ := cmd.Flags().GetString("part.index")
	chunkField, _ := cmd.Flags().GetString("part.chunk")
	subChunkField, _ := cmd.Flags().GetString("part.sub-chunk")
	prefix, _ := cmd.Flags().GetString("part.prefix")
	numStripes, _ := cmd.Flags().GetInt("part.num-stripes")
	numSubStripes, _ := cmd.Flags().GetInt("part.num-sub-stripes")
	overlap, _ := cmd.Flags().GetFloat64("part.overlap")
	sampleSeed, _ := cmd.Flags().GetUint64("sample.seed")
	sampleFraction, _ := cmd.Flags().GetFloat64("sample.fraction")
	lonMin, _ := cmd.Flags().GetFloat64("lon-min")
	lonMax, _ := cmd.Flags().GetFloat64("lon-max")
	latMin, _ := cmd.Flags().GetFloat64("lat-min")
	latMax, _ := cmd.Flags().GetFloat64("lat-max")
	chunkIDList, _ := cmd.Flags().GetString("chunk-id")
	outNode, _ := cmd.Flags().GetInt("out.node")
	positions, _ := cmd.Flags().GetStringArray("pos")
	compress, _ := cmd.Flags().GetBool("compress")

	if prefix != "" {
		chunkField = prefix + chunkField
		subChunkField = prefix + subChunkField
	}

	secondary, err := parsePositions(positions)
	if err != nil {
		return err
	}

	chunkerCfg := chunker.Config{
		OverlapDeg:             overlap,
		NumStripes:             numStripes,
		NumSubStripesPerStripe: numSubStripes,
	}
	ck, err := chunker.New(chunkerCfg)
	if err != nil {
		return err
	}

	targetChunks, err := resolveTargetChunks(ck, chunkIDList, lonMin, lonMax, latMin, latMax, overlap)
	if err != nil {
		return err
	}
	if outNode >= 0 {
		targetChunks = filterByOutNode(targetChunks, shared.OutNumNodes, outNode)
	}

	cfg := duplicator.Config{
		Format:              shared.Format(),
		RecordIDField:       shared.IDField,
		PartPosition:        duplicator.PositionFields{LonField: shared.PartLonField, LatField: shared.PartLatField},
		SecondaryPositions:  secondary,
		ChunkIDField:        chunkField,
		SubChunkIDField:     subChunkField,
		Level:               level,
		InDir:               inDir,
		InNodes:             inNodes,
		OutDir:              shared.OutDir,
		OutNodes:            shared.OutNumNodes,
		Compress:            compress,
		TargetChunks:        targetChunks,
		Sampling:            duplicator.SamplingConfig{Seed: sampleSeed, Fraction: sampleFraction},
	}

	partIndex, err := loadHtmIndex(partIndexPath, level)
	if err != nil {
		return fmt.Errorf("duplicator: load --part.index: %w", err)
	}
	dataIndex, err := loadHtmIndex(indexPath, level)
	if err != nil {
		return fmt.Errorf("duplicator: load --index: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := duplicator.RunOptions{
		Chunker:         chunkerCfg,
		NumWorkers:      shared.NumWorkers,
		BlockSizeMiB:    shared.BlockSizeMiB,
	}

	logger.Info("duplicator starting", "targetChunks", len(targetChunks), "level", level, "workers", shared.NumWorkers)
	combined, err := duplicator.Run(ctx, cfg, opts, partIndex, dataIndex)
	if err != nil {
		return err
	}

	idxPath := cfg.OutDir + "/chunk_index.bin"
	f, err := os.Create(idxPath)
	if err != nil {
		return fmt.Errorf("duplicator: create %s: %w", idxPath, err)
	}
	defer f.Close()
	if _, err := combined.WriteTo(f); err != nil {
		return fmt.Errorf("duplicator: write %s: %w", idxPath, err)
	}

	logger.Info("duplicator finished", "chunks", len(combined.Keys()))
	return nil
}

func loadHtmIndex(path string, level int) (*partidx.HtmIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required: %w", qerr.ErrConfig)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return partidx.ReadHtmIndex(f, level)
}

func parsePositions(raw []string) ([]duplicator.PositionFields, error) {
	out := make([]duplicator.PositionFields, 0, len(raw))
	for _, p := range raw {
		parts := strings.Split(p, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("duplicator: --pos %q must be \"lonField,latField\": %w", p, qerr.ErrConfig)
		}
		out = append(out, duplicator.PositionFields{LonField: strings.TrimSpace(parts[0]), LatField: strings.TrimSpace(parts[1])})
	}
	return out, nil
}

// resolveTargetChunks honors --chunk-id when given, else a --lon/lat-*
// region filter, else the empty list (meaning the whole layout).
func resolveTargetChunks(ck *chunker.Chunker, chunkIDList string, lonMin, lonMax, latMin, latMax, overlap float64) ([]int32, error) {
	if chunkIDList != "" {
		return cliflags.ParseIntList(chunkIDList)
	}
	if lonMin == 0 && lonMax == 0 && latMin == 0 && latMax == 0 {
		return nil, nil
	}
	box := geom.NewBox(lonMin, lonMax, latMin, latMax)
	return ck.ChunksIntersecting(box, overlap)
}

func filterByOutNode(chunkIDs []int32, outNodes, outNode int) []int32 {
	if len(chunkIDs) == 0 {
		return chunkIDs
	}
	out := make([]int32, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if int(partfile.HashUint32(uint32(id))%uint64(outNodes)) == outNode {
			out = append(out, id)
		}
	}
	return out
}
