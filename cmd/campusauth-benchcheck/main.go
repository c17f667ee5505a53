// Command campusauth-benchcheck compares two `go test -bench` outputs and
// fails when a tracked benchmark got slower than the allowed ratio.
//
//	go test -run '^$' -bench . -count 6 . > new.txt
//	campusauth-benchcheck --baseline old.txt --candidate new.txt
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const defaultThreshold = 0.30

// The hot paths of a running server: every protected request verifies, every
// client recovers through refresh.
var defaultTracked = map[string][]string{
	"BenchmarkValidateJWTOnly":               {"ns/op", "allocs/op"},
	"BenchmarkValidateStrict":                {"ns/op", "allocs/op"},
	"BenchmarkRefresh":                       {"ns/op"},
	"BenchmarkRefreshRotating":               {"ns/op"},
	"BenchmarkMetricsRequestMix/Padded":      {"ns/op"},
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
		benchmarks    []string
	)

	cmd := &cobra.Command{
		Use:           "campusauth-benchcheck",
		Short:         "Fail on benchmark regressions between two runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if threshold < 0 {
				return fmt.Errorf("--threshold must be >= 0")
			}
			tracked := defaultTracked
			if len(benchmarks) > 0 {
				tracked = make(map[string][]string, len(benchmarks))
				for _, b := range benchmarks {
					tracked[b] = []string{"ns/op"}
				}
			}

			baseline, err := parseFile(baselinePath, tracked)
			if err != nil {
				return fmt.Errorf("parse baseline: %w", err)
			}
			candidate, err := parseFile(candidatePath, tracked)
			if err != nil {
				return fmt.Errorf("parse candidate: %w", err)
			}

			rows, failures := compare(baseline, candidate, tracked, threshold)
			printRows(cmd.OutOrStdout(), rows)
			if len(failures) > 0 {
				for _, f := range failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", f)
				}
				return fmt.Errorf("%d benchmark check(s) failed", len(failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "Baseline benchmark output")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "Candidate benchmark output")
	cmd.Flags().Float64Var(&threshold, "threshold", defaultThreshold, "Maximum allowed slowdown (0.30 = +30%)")
	cmd.Flags().StringSliceVar(&benchmarks, "bench", nil, "Track these benchmarks (ns/op only) instead of the defaults")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func parseFile(path string, tracked map[string][]string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f, tracked)
}

func printRows(w io.Writer, rows []row) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tUNIT\tBASELINE\tCANDIDATE\tDELTA")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%+.2f%%\n", r.benchmark, r.unit, r.baseline, r.candidate, r.delta*100)
	}
	_ = tw.Flush()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
