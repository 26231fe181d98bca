// Command htm-indexer partitions catalog rows by HTM triangle,
// implementing the §6.5 "HTM indexer" CLI surface: it reads one or more
// input CSV files, computes each row's HTM id at --htm.level, and
// writes per-triangle htm_<hex(htmId)>.txt / .ids files plus a combined
// htm_index.bin under --out.dir.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lsst/qserv-sub016/internal/cliflags"
	"github.com/lsst/qserv-sub016/internal/htmindexer"
	"github.com/lsst/qserv-sub016/internal/mapreduce"
	"github.com/lsst/qserv-sub016/internal/partidx"
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
		Use:     "htm-indexer <input-file>...",
		Short:   "Partition catalog rows by HTM triangle",
		Version: version,
		Args:    cobra.MinimumNArgs(1),
		RunE:    run,
	}
	cliflags.Bind(cmd)
	cmd.Flags().Int("htm.level", 8, "HTM subdivision level")
	cmd.Flags().Bool("compress", false, "zstd-compress the per-triangle .txt output")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	shared, err := cliflags.FromCmd(cmd)
	if err != nil {
		return err
	}
	level, err := cmd.Flags().GetInt("htm.level")
	if err != nil {
		return err
	}
	compress, err := cmd.Flags().GetBool("compress")
	if err != nil {
		return err
	}
	logger := cliflags.Logger(shared.Verbose)

	cfg := htmindexer.Config{
		Format:   shared.Format(),
		IDField:  shared.IDField,
		LonField: shared.PartLonField,
		LatField: shared.PartLatField,
		Level:    level,
		OutDir:   shared.OutDir,
		NumNodes: shared.OutNumNodes,
		Compress: compress,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mrCfg := htmindexer.MapReduceConfig(shared.NumWorkers, shared.BlockSizeMiB, 0, "")
	engine, err := mapreduce.New(mrCfg)
	if err != nil {
		return err
	}

	logger.Info("htm-indexer starting", "inputs", len(args), "level", level, "workers", shared.NumWorkers)
	results, err := engine.Run(ctx, args, func() mapreduce.Worker[htmindexer.Key] {
		w, werr := htmindexer.NewWorker(cfg)
		if werr != nil {
			panic(werr)
		}
		return w
	})
	if err != nil {
		return err
	}

	combined := partidx.NewHtmIndex(level)
	for _, r := range results {
		idx, ok := r.(*partidx.HtmIndex)
		if !ok {
			continue
		}
		if err := combined.Merge(idx); err != nil {
			return err
		}
	}

	idxPath := cfg.OutDir + "/htm_index.bin"
	f, err := os.Create(idxPath)
	if err != nil {
		return fmt.Errorf("htm-indexer: create %s: %w", idxPath, err)
	}
	defer f.Close()
	if _, err := combined.WriteTo(f); err != nil {
		return fmt.Errorf("htm-indexer: write %s: %w", idxPath, err)
	}

	logger.Info("htm-indexer finished", "triangles", len(combined.Ids()))
	return nil
}
