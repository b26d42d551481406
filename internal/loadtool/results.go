package loadtool

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Result is one command's timing summary as exported by hyperfine.
// All durations are in seconds.
type Result struct {
	Command string    `json:"command"`
	Mean    float64   `json:"mean"`
	Stddev  float64   `json:"stddev"`
	Median  float64   `json:"median"`
	User    float64   `json:"user"`
	System  float64   `json:"system"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Times   []float64 `json:"times"`
}

// Results is the top-level hyperfine JSON export.
type Results struct {
	Results []Result `json:"results"`
}

// ParseResults decodes a hyperfine JSON export.
func ParseResults(r io.Reader) (*Results, error) {
	var res Results
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("parse load tool results: %w", err)
	}
	return &res, nil
}

// ReadResults reads and decodes the export at path.
func ReadResults(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseResults(f)
}

// ByMean returns the results ordered fastest first. The receiver is not
// modified.
func (r *Results) ByMean() []Result {
	sorted := make([]Result, len(r.Results))
	copy(sorted, r.Results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Mean < sorted[j].Mean
	})
	return sorted
}

// Extremes returns the fastest and slowest results by mean. ok is false
// when there are no results.
func (r *Results) Extremes() (fastest, slowest Result, ok bool) {
	if r == nil || len(r.Results) == 0 {
		return Result{}, Result{}, false
	}
	sorted := r.ByMean()
	return sorted[0], sorted[len(sorted)-1], true
}
