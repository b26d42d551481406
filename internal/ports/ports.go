// Package ports hands out OS-assigned ephemeral ports for runtime servers.
package ports

import (
	"fmt"
	"net"

	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// maxDuplicateRetries bounds how often a kind is re-allocated when the OS
// returns a port already handed to another kind in the same run.
const maxDuplicateRetries = 8

// AllocationError reports that no listening socket could be bound.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("port allocation failed: %v", e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Assignment maps each runtime in a run to its port.
type Assignment map[runtimes.Kind]int

// Port returns the port assigned to k, or 0.
func (a Assignment) Port(k runtimes.Kind) int {
	return a[k]
}

// Allocate binds 127.0.0.1:0, reads the port the OS picked, and releases it.
// The port is free at the moment of return; nothing keeps it free afterwards,
// so callers should start the consuming process promptly.
func Allocate() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, &AllocationError{Err: err}
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, &AllocationError{Err: err}
	}
	return port, nil
}

// AllocateAssignment allocates one distinct port for every kind.
func AllocateAssignment(kinds []runtimes.Kind) (Assignment, error) {
	return allocateWith(kinds, Allocate)
}

func allocateWith(kinds []runtimes.Kind, alloc func() (int, error)) (Assignment, error) {
	assignment := make(Assignment, len(kinds))
	used := make(map[int]bool, len(kinds))

	for _, k := range kinds {
		var port int
		for attempt := 0; ; attempt++ {
			p, err := alloc()
			if err != nil {
				return nil, err
			}
			if !used[p] {
				port = p
				break
			}
			if attempt >= maxDuplicateRetries {
				return nil, &AllocationError{
					Err: fmt.Errorf("%s: kept receiving already assigned port %d", k, p),
				}
			}
		}
		used[port] = true
		assignment[k] = port
	}

	return assignment, nil
}
