// Package runtimes describes the JavaScript server runtimes under benchmark.
package runtimes

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind identifies one supported server runtime.
type Kind int

const (
	// Workerd is the Cloudflare workers runtime, driven by a capnp startup descriptor.
	Workerd Kind = iota

	// Deno runs the deno adapter.
	Deno

	// Bun runs the bun adapter.
	Bun

	// Node runs the node:http adapter.
	Node
)

// kinds is the canonical launch order.
var kinds = []Kind{Workerd, Deno, Bun, Node}

// Kinds returns every supported runtime in canonical launch order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// String returns the runtime name used in config files, logs and load tool labels.
func (k Kind) String() string {
	switch k {
	case Workerd:
		return "workerd"
	case Deno:
		return "deno"
	case Bun:
		return "bun"
	case Node:
		return "node"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so Kind can key JSON objects.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid runtime kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Valid reports whether k is one of the supported runtimes.
func (k Kind) Valid() bool {
	return k >= Workerd && k <= Node
}

// ParseKind converts a runtime name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "workerd":
		return Workerd, nil
	case "deno":
		return Deno, nil
	case "bun":
		return Bun, nil
	case "node":
		return Node, nil
	default:
		return 0, fmt.Errorf("unknown runtime %q (want one of: workerd, deno, bun, node)", name)
	}
}

// ParseList parses a comma-separated runtime list. Duplicates are dropped and
// the result is returned in canonical launch order regardless of input order.
func ParseList(list string) ([]Kind, error) {
	seen := mapset.NewThreadUnsafeSet[Kind]()
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		seen.Add(k)
	}
	if seen.Cardinality() == 0 {
		return nil, fmt.Errorf("no runtimes selected")
	}
	return Canonical(seen.ToSlice()), nil
}

// Canonical returns a copy of ks sorted into launch order.
func Canonical(ks []Kind) []Kind {
	out := make([]Kind, len(ks))
	copy(out, ks)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names returns the string names of ks.
func Names(ks []Kind) []string {
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = k.String()
	}
	return names
}
