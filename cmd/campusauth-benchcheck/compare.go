package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// samples maps benchmark name to unit to every value seen (one per -count run).
type samples map[string]map[string][]float64

type row struct {
	benchmark string
	unit      string
	baseline  float64
	candidate float64
	delta     float64
}

func parse(r io.Reader, tracked map[string][]string) (samples, error) {
	out := samples{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, sc.Err()
}

// trimProcs drops the -GOMAXPROCS suffix go test appends to names.
func trimProcs(name string) string {
	if i := strings.LastIndexByte(name, '-'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

func compare(baseline, candidate samples, tracked map[string][]string, threshold float64) ([]row, []string) {
	var (
		rows     []row
		failures []string
	)
	for _, bench := range sortedKeys(tracked) {
		for _, unit := range tracked[bench] {
			base, cand := baseline[bench][unit], candidate[bench][unit]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", bench, unit))
				continue
			}
			b, c := median(base), median(cand)
			if b <= 0 {
				// allocs/op of 0 cannot regress by ratio; any allocation is a failure.
				if c > 0 {
					failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.2f", bench, unit, c))
				}
				rows = append(rows, row{benchmark: bench, unit: unit, baseline: b, candidate: c})
				continue
			}
			d := (c - b) / b
			rows = append(rows, row{benchmark: bench, unit: unit, baseline: b, candidate: c, delta: d})
			if d > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+.2f%% (limit %+.2f%%)", bench, unit, d*100, threshold*100))
			}
		}
	}
	return rows, failures
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
