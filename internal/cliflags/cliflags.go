// Package cliflags binds the shared CLI surface described by §6.5 once,
// as persistent flags on a command tree's root, the way
// cmd/gastrolog/cli/cli.go binds --addr/--token/--output once on
// NewConfigCommand and every subcommand reads them back via
// cmd.Flags().Get*.
package cliflags

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lsst/qserv-sub016/internal/csvedit"
	"github.com/lsst/qserv-sub016/internal/logging"
	"github.com/lsst/qserv-sub016/internal/qerr"
)

// Shared holds the values of the flags every partitioning binary takes,
// parsed once per invocation via FromCmd.
type Shared struct {
	OutDir       string
	OutNumNodes  int
	NumWorkers   int
	BlockSizeMiB int
	InFields     []string
	OutFields    []string
	IDField      string
	PartLonField string
	PartLatField string
	Verbose      bool
}

// Bind registers the §6.5 shared flags as persistent flags on cmd, so
// every subcommand added under it inherits them.
func Bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("out.dir", "", "output directory")
	flags.Int("out.num-nodes", 1, "number of output node subdirectories")
	flags.Int("mr.num-workers", 4, "number of map-reduce worker goroutines")
	flags.Int("mr.block-size", 16, "map-reduce input block size, in MiB")
	flags.String("in.fields", "", "comma-separated input CSV field names")
	flags.String("out.fields", "", "comma-separated output CSV field names (defaults to in.fields)")
	flags.String("part.pos", "", "comma-separated lon,lat field names")
	flags.String("id", "", "record id field name")
	flags.BoolP("verbose", "v", false, "enable debug logging")
}

// FromCmd reads back the flags Bind registered and validates the
// comma-separated lists it expects. Per-binary flags are read
// separately by each cmd/ package.
func FromCmd(cmd *cobra.Command) (*Shared, error) {
	flags := cmd.Flags()
	s := &Shared{}
	var err error
	if s.OutDir, err = flags.GetString("out.dir"); err != nil {
		return nil, err
	}
	if s.OutNumNodes, err = flags.GetInt("out.num-nodes"); err != nil {
		return nil, err
	}
	if s.NumWorkers, err = flags.GetInt("mr.num-workers"); err != nil {
		return nil, err
	}
	if s.BlockSizeMiB, err = flags.GetInt("mr.block-size"); err != nil {
		return nil, err
	}
	if s.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}

	inFields, err := flags.GetString("in.fields")
	if err != nil {
		return nil, err
	}
	s.InFields = splitList(inFields)
	if len(s.InFields) == 0 {
		return nil, fmt.Errorf("cliflags: --in.fields is required: %w", qerr.ErrConfig)
	}

	outFields, err := flags.GetString("out.fields")
	if err != nil {
		return nil, err
	}
	s.OutFields = splitList(outFields)
	if len(s.OutFields) == 0 {
		s.OutFields = s.InFields
	}

	if s.IDField, err = flags.GetString("id"); err != nil {
		return nil, err
	}

	partPos, err := flags.GetString("part.pos")
	if err != nil {
		return nil, err
	}
	pos := splitList(partPos)
	if len(pos) != 2 {
		return nil, fmt.Errorf("cliflags: --part.pos must be \"lonField,latField\": %w", qerr.ErrConfig)
	}
	s.PartLonField, s.PartLatField = pos[0], pos[1]

	return s, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Format builds an in/out csvedit.Config from the shared field lists,
// using the conventional comma/doublequote/backslash dialect on both
// sides (the CLI surface exposes no delimiter override).
func (s *Shared) Format() csvedit.Config {
	return csvedit.Config{
		In:  csvedit.DefaultFormat(s.InFields),
		Out: csvedit.DefaultFormat(s.OutFields),
	}
}

// Logger builds the process's base logger, text-formatted to stderr,
// at Debug when --verbose is set and Info otherwise. Matching
// cmd/gastrolog/main.go, there is no slog.SetDefault call.
func Logger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.Default(slog.New(handler))
}

// ParseIntList parses a comma-separated list of integers, used by
// per-binary flags like --chunk-id and --chunk2worker's --chunk.
func ParseIntList(s string) ([]int32, error) {
	items := splitList(s)
	out := make([]int32, 0, len(items))
	for _, item := range items {
		v, err := strconv.ParseInt(item, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("cliflags: invalid integer %q: %w", item, qerr.ErrConfig)
		}
		out = append(out, int32(v))
	}
	return out, nil
}
