// Package discovery finds benchmark directories under the harness root.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// PayloadFile marks a directory as a benchmark.
const PayloadFile = "benchmark.js"

// Excluded holds directory names that are never benchmarks.
var Excluded = mapset.NewSet("node_modules", "templates")

// Find returns the names of root's immediate subdirectories that contain a
// benchmark payload, sorted lexicographically. Hidden entries and Excluded
// names are skipped.
func Find(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("discover benchmarks in %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || Excluded.Contains(name) {
			continue
		}
		// Stat rather than DirEntry.IsDir so symlinked directories count.
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil || !info.IsDir() {
			continue
		}
		payload, err := os.Stat(filepath.Join(root, name, PayloadFile))
		if err != nil || payload.IsDir() {
			continue
		}
		dirs = append(dirs, name)
	}

	sort.Strings(dirs)
	return dirs, nil
}

// IsBenchmark reports whether dir contains a benchmark payload.
func IsBenchmark(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, PayloadFile))
	return err == nil && !info.IsDir()
}
