// Package materialize writes the per-run files a benchmark directory needs
// before any runtime is started: the port assignment, the workerd startup
// descriptor and one adapter script per runtime.
package materialize

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/randomizedcoder/runtime-http-bench/internal/ports"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

const (
	// ConfigFile is the port assignment read by every adapter.
	ConfigFile = "config.json"

	// ManifestFile optionally lists extra files to embed into workerd.
	ManifestFile = "files.json"

	// BaseTemplate is the workerd descriptor template name.
	BaseTemplate = "base.capnp"

	// PortPlaceholder is replaced by the workerd port in BaseTemplate.
	PortPlaceholder = "$PORT"

	// InsertMarker is the line in BaseTemplate replaced by embed declarations.
	InsertMarker = "    # Additional files will be inserted here by the runner"

	// PayloadModule is always embedded as the benchmark body.
	PayloadModule = "benchmark.js"
)

//go:embed templates
var embedded embed.FS

// Defaults returns the built-in template set.
func Defaults() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// ManifestParseError means files.json exists but is not a JSON string array.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("parse manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// Artifacts lists what Materialize wrote.
type Artifacts struct {
	ConfigFile string
	Descriptor string // empty when workerd is not selected
	Adapters   map[runtimes.Kind]string
	Manifest   []string
}

// Materializer renders run artifacts from a template set.
type Materializer struct {
	templates fs.FS
	logger    *slog.Logger
}

// New creates a Materializer. A nil templates uses Defaults().
func New(templates fs.FS, logger *slog.Logger) *Materializer {
	if templates == nil {
		templates = Defaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{templates: templates, logger: logger}
}

type portEntry struct {
	Port int `json:"port"`
}

// Materialize writes config.json, the workerd descriptor and one adapter
// per kind into dir, replacing anything left by a previous run.
func (m *Materializer) Materialize(dir string, assignment ports.Assignment, kinds []runtimes.Kind) (*Artifacts, error) {
	art := &Artifacts{
		ConfigFile: filepath.Join(dir, ConfigFile),
		Adapters:   make(map[runtimes.Kind]string, len(kinds)),
	}

	cfg := make(map[runtimes.Kind]portEntry, len(kinds))
	for _, k := range kinds {
		port, ok := assignment[k]
		if !ok {
			return nil, fmt.Errorf("materialize: no port assigned to %s", k)
		}
		cfg[k] = portEntry{Port: port}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("materialize: encode %s: %w", ConfigFile, err)
	}
	if err := replaceFile(art.ConfigFile, append(data, '\n')); err != nil {
		return nil, err
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		var perr *ManifestParseError
		if !errors.As(err, &perr) {
			return nil, err
		}
		m.logger.Warn("manifest_ignored", "path", perr.Path, "error", perr.Err)
		manifest = nil
	}
	art.Manifest = manifest

	for _, k := range kinds {
		if k == runtimes.Workerd {
			desc, err := m.renderDescriptor(assignment[k], manifest)
			if err != nil {
				return nil, err
			}
			art.Descriptor = filepath.Join(dir, runtimes.DescriptorFile)
			if err := replaceFile(art.Descriptor, []byte(desc)); err != nil {
				return nil, err
			}
		}

		tmpl, err := fs.ReadFile(m.templates, runtimes.TemplateFile(k))
		if err != nil {
			return nil, fmt.Errorf("materialize: read template for %s: %w", k, err)
		}
		dst := filepath.Join(dir, runtimes.AdapterFile(k))
		if err := replaceFile(dst, tmpl); err != nil {
			return nil, err
		}
		art.Adapters[k] = dst
	}

	m.logger.Debug("artifacts_written",
		"dir", dir,
		"runtimes", runtimes.Names(kinds),
		"manifest_files", len(manifest),
	)
	return art, nil
}

func (m *Materializer) renderDescriptor(port int, manifest []string) (string, error) {
	base, err := fs.ReadFile(m.templates, BaseTemplate)
	if err != nil {
		return "", fmt.Errorf("materialize: read %s: %w", BaseTemplate, err)
	}
	return RenderDescriptor(string(base), port, manifest), nil
}

// RenderDescriptor substitutes the port and the embedded-file list into a
// base descriptor. benchmark.js is always embedded as an ES module; each
// manifest entry is embedded as text.
func RenderDescriptor(base string, port int, manifest []string) string {
	var b strings.Builder
	b.WriteString(",\n    ")
	fmt.Fprintf(&b, "(name = %q, esModule = embed %q)", PayloadModule, PayloadModule)
	for _, f := range manifest {
		b.WriteString(",\n    ")
		fmt.Fprintf(&b, "(name = %q, text = embed %q)", f, f)
	}

	out := strings.Replace(base, InsertMarker, b.String(), 1)
	return strings.ReplaceAll(out, PortPlaceholder, strconv.Itoa(port))
}

// ReadManifest returns the file names listed in dir/files.json. A missing
// manifest yields no files and no error.
func ReadManifest(dir string) ([]string, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var files []string
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, &ManifestParseError{Path: path, Err: err}
	}
	for _, f := range files {
		if f == "" || strings.ContainsAny(f, "\"\n") {
			return nil, &ManifestParseError{Path: path, Err: fmt.Errorf("invalid file name %q", f)}
		}
	}
	return files, nil
}

// replaceFile removes any previous artifact at path and writes data.
func replaceFile(path string, data []byte) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("materialize: remove %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("materialize: write %s: %w", path, err)
	}
	return nil
}
