package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// ErrAlreadyRunning is returned when a kind already has a live process.
var ErrAlreadyRunning = errors.New("runtime already has a live process")

// PrematureExitError reports a server that exited before it could be probed.
type PrematureExitError struct {
	Kind     runtimes.Kind
	ExitCode int
	Recent   []string
}

func (e *PrematureExitError) Error() string {
	msg := fmt.Sprintf("%s exited immediately with code %d", e.Kind, e.ExitCode)
	if len(e.Recent) > 0 {
		msg += ": " + strings.Join(e.Recent, " | ")
	}
	return msg
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	return 1
}
