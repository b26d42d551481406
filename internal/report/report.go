// Package report writes the consolidated RESULTS.md for a batch of runs.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/runtime-http-bench/internal/loadtool"
)

// FileName is the consolidated report written at the harness root.
const FileName = "RESULTS.md"

// digestCompression matches the accuracy/size trade used for latency digests.
const digestCompression = 100

// Quantiles reported per command.
var Quantiles = []float64{0.50, 0.95, 0.99}

// Bench is one run's entry in the report.
type Bench struct {
	Name string
	Dir  string
	Err  error // set when the run failed
}

// Percentiles holds a command's latency quantiles in seconds.
type Percentiles struct {
	Command string
	Values  []float64 // aligned with Quantiles
	Samples int
}

// ComputePercentiles folds each result's times into a t-digest and reads
// the configured quantiles. Results without samples are skipped.
func ComputePercentiles(res *loadtool.Results) []Percentiles {
	var out []Percentiles
	for _, r := range res.Results {
		if len(r.Times) == 0 {
			continue
		}
		td := tdigest.NewWithCompression(digestCompression)
		for _, t := range r.Times {
			td.Add(t, 1)
		}
		p := Percentiles{Command: r.Command, Samples: len(r.Times)}
		for _, q := range Quantiles {
			p.Values = append(p.Values, td.Quantile(q))
		}
		out = append(out, p)
	}
	return out
}

func ms(seconds float64) string {
	return fmt.Sprintf("%.2fms", seconds*1000)
}

// Render builds the report for benches. runtimes names what was compared.
func Render(benches []Bench, runtimes []string, now time.Time) string {
	var b strings.Builder

	b.WriteString("# Runtime Benchmarks Results\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", now.UTC().Format(time.RFC3339))
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Comparing performance across: %s\n\n", strings.Join(runtimes, ", "))

	for _, bench := range benches {
		fmt.Fprintf(&b, "## %s\n\n", bench.Name)
		renderBench(&b, bench)
		b.WriteString("---\n\n")
	}
	return b.String()
}

func renderBench(b *strings.Builder, bench Bench) {
	if bench.Err != nil {
		fmt.Fprintf(b, "_Run failed: %s_\n\n", oneLine(bench.Err.Error()))
		return
	}

	if md, err := os.ReadFile(filepath.Join(bench.Dir, loadtool.ResultsMarkdown)); err == nil {
		b.Write(bytes.TrimRight(md, "\n"))
		b.WriteString("\n\n")
	}

	res, err := loadtool.ReadResults(filepath.Join(bench.Dir, loadtool.ResultsJSON))
	if err != nil {
		b.WriteString("_Results not available_\n\n")
		return
	}

	fastest, slowest, ok := res.Extremes()
	if !ok {
		b.WriteString("_Results not available_\n\n")
		return
	}
	fmt.Fprintf(b, "**Fastest:** %s (%s)\n\n", fastest.Command, ms(fastest.Mean))
	fmt.Fprintf(b, "**Slowest:** %s (%s)\n\n", slowest.Command, ms(slowest.Mean))

	pcts := ComputePercentiles(res)
	if len(pcts) == 0 {
		return
	}
	b.WriteString("| Command |")
	for _, q := range Quantiles {
		fmt.Fprintf(b, " p%d |", int(q*100+0.5))
	}
	b.WriteString(" Samples |\n|:---|")
	for range Quantiles {
		b.WriteString("---:|")
	}
	b.WriteString("---:|\n")
	for _, p := range pcts {
		fmt.Fprintf(b, "| `%s` |", p.Command)
		for _, v := range p.Values {
			fmt.Fprintf(b, " %s |", ms(v))
		}
		fmt.Fprintf(b, " %d |\n", p.Samples)
	}
	b.WriteString("\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Write renders the report and writes it to path.
func Write(path string, benches []Bench, runtimes []string, now time.Time) error {
	if err := os.WriteFile(path, []byte(Render(benches, runtimes, now)), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
