package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hupe1980/filefilter/internal/chainfile"
	"github.com/hupe1980/filefilter/internal/filter"
)

var errNoFilters = errors.New("at least one filter is required (--filter or --chain)")

// chainOptions select the filters and the files they run on. They are
// shared by the root, check and watch commands.
type chainOptions struct {
	filters   []string
	inputs    []string
	chainFile string
}

// specs returns the chain file filters followed by the --filter ones.
func (o *chainOptions) specs(caller string) ([]filter.Spec, error) {
	var paths []string

	if o.chainFile != "" {
		cf, err := chainfile.Load(o.chainFile)
		if err != nil {
			return nil, &ExitError{Code: ExitUsage, Err: err}
		}

		paths = append(paths, cf.Filters...)
	}

	paths = append(paths, o.filters...)

	if len(paths) == 0 {
		return nil, &ExitError{Code: ExitUsage, Err: errNoFilters}
	}

	return filter.NewSpecs(caller, paths), nil
}

// registerFilterFlags adds the filter selection flags to a cobra command.
func registerFilterFlags(cmd *cobra.Command, opts *chainOptions) {
	f := cmd.Flags()
	f.StringArrayVarP(&opts.filters, "filter", "f", nil, "filter program; repeat or list several to build the chain in order")
	f.StringVar(&opts.chainFile, "chain", "", "chain file (yaml, json, toml) whose filters run before --filter ones")
}

// registerInputFlags adds the input file flag to a cobra command.
func registerInputFlags(cmd *cobra.Command, opts *chainOptions) {
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "file to filter in place, or a glob pattern; stdin when omitted")
}

// registerEngineFlags adds the configuration-backed flags every command
// honours. Their values are read through config.Load.
func registerEngineFlags(f *pflag.FlagSet) {
	f.String("caller", "", "program that runs every filter, e.g. an interpreter (env FF_CALLER)")
	f.String("workdir", "", "parent directory of the scratch directory (env FF_WORKDIR, default .)")
	f.String("filterdir", "", "directories searched for filters before $PATH (env FF_FILTERDIR)")
	f.BoolP("progress", "p", false, "print the completed filters of every file on stderr (env FF_PROGRESS)")
	f.Int("jobs", 1, "number of files filtered concurrently")
	f.Duration("timeout", 0, "kill a filter running longer than this; 0 disables")
	f.Bool("lock", false, "hold an advisory lock on each file while it is filtered")
}

// multiValueFlags take every following non-flag argument as a value, so
// that "-f a b -i x y" works like "-f a -f b -i x -i y".
var multiValueFlags = map[string]bool{
	"-f": true, "--filter": true,
	"-i": true, "--input": true,
}

// normalizeArgs rewrites runs of values after a multi-value flag into
// repeated flags cobra understands. Arguments after "--" are untouched.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))

	var (
		flag    string
		pending bool
	)

	for i, arg := range args {
		switch {
		case arg == "--":
			return append(out, args[i:]...)
		case multiValueFlags[arg]:
			flag, pending = arg, true
			out = append(out, arg)
		case strings.HasPrefix(arg, "-") && arg != "-":
			flag, pending = "", false
			out = append(out, arg)
		case pending:
			pending = false
			out = append(out, arg)
		case flag != "":
			out = append(out, flag, arg)
		default:
			out = append(out, arg)
		}
	}

	return out
}
