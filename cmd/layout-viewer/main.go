// Command layout-viewer is a thin read-only inspection tool over
// internal/chunker: given a layout (--part.num-stripes, --part.num-
// sub-stripes, --part.overlap), it prints either a chunk's spherical
// bounds or, with --chunk2worker, a deterministic chunkId -> workerId
// assignment (chunkId mod numWorkers). It has no §4 module of its own;
// it exists solely to let an operator sanity-check a layout before
// running the htm-indexer/duplicator pipeline against it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lsst/qserv-sub016/internal/chunker"
	"github.com/lsst/qserv-sub016/internal/cliflags"
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
		Use:     "layout-viewer",
		Short:   "Inspect a chunk layout's bounds or chunk-to-worker assignment",
		Version: version,
		RunE:    run,
	}
	cmd.Flags().Int("part.num-stripes", 0, "layout stripe count")
	cmd.Flags().Int("part.num-sub-stripes", 0, "layout sub-stripes per stripe")
	cmd.Flags().Float64("part.overlap", 0, "layout overlap, in degrees")
	cmd.Flags().Int("chunk2worker", 0, "if > 0, print chunkId -> workerId using chunkId mod this many workers")
	cmd.Flags().String("chunk", "", "comma-separated chunk ids to restrict to; empty means every chunk")
	cmd.Flags().Int("min-chunk", -1, "lowest chunk id to enumerate; -1 means 0")
	cmd.Flags().Int("max-chunk", -1, "highest chunk id to enumerate (inclusive); -1 means the layout's last chunk")
	cmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := cliflags.Logger(verbose)

	numStripes, _ := cmd.Flags().GetInt("part.num-stripes")
	numSubStripes, _ := cmd.Flags().GetInt("part.num-sub-stripes")
	overlap, _ := cmd.Flags().GetFloat64("part.overlap")
	numWorkers, _ := cmd.Flags().GetInt("chunk2worker")
	chunkList, _ := cmd.Flags().GetString("chunk")
	minChunk, _ := cmd.Flags().GetInt("min-chunk")
	maxChunk, _ := cmd.Flags().GetInt("max-chunk")

	ck, err := chunker.New(chunker.Config{
		NumStripes:             numStripes,
		NumSubStripesPerStripe: numSubStripes,
		OverlapDeg:             overlap,
	})
	if err != nil {
		return err
	}

	chunkIDs, err := resolveChunkIDs(ck, chunkList, minChunk, maxChunk)
	if err != nil {
		return err
	}

	logger.Debug("layout-viewer enumerating", "numChunks", ck.NumChunks(), "count", len(chunkIDs))

	if numWorkers > 0 {
		return printWorkerAssignment(cmd, chunkIDs, numWorkers)
	}
	return printBounds(cmd, ck, chunkIDs)
}

func resolveChunkIDs(ck *chunker.Chunker, chunkList string, minChunk, maxChunk int) ([]int32, error) {
	if chunkList != "" {
		return cliflags.ParseIntList(chunkList)
	}
	if minChunk < 0 {
		minChunk = 0
	}
	if maxChunk < 0 {
		maxChunk = int(ck.NumChunks()) - 1
	}
	if minChunk > maxChunk {
		return nil, fmt.Errorf("layout-viewer: --min-chunk %d > --max-chunk %d: %w", minChunk, maxChunk, qerr.ErrInvalidArg)
	}
	out := make([]int32, 0, maxChunk-minChunk+1)
	for id := minChunk; id <= maxChunk; id++ {
		out = append(out, int32(id))
	}
	return out, nil
}

// workerFor assigns a chunk to a worker deterministically by chunkId
// mod numWorkers, matching the replication control plane's expectation
// that the same chunk always resolves to the same worker.
func workerFor(chunkID int32, numWorkers int) int {
	w := int(chunkID) % numWorkers
	if w < 0 {
		w += numWorkers
	}
	return w
}

func printWorkerAssignment(cmd *cobra.Command, chunkIDs []int32, numWorkers int) error {
	for _, id := range chunkIDs {
		fmt.Fprintf(cmd.OutOrStdout(), "(%d) -> %d\n", id, workerFor(id, numWorkers))
	}
	return nil
}

func printBounds(cmd *cobra.Command, ck *chunker.Chunker, chunkIDs []int32) error {
	for _, id := range chunkIDs {
		bounds, err := ck.GetChunkBounds(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%g\t%g\t%g\t%g\n", id, bounds.LonMin, bounds.LonMax, bounds.LatMin, bounds.LatMax)
	}
	return nil
}
