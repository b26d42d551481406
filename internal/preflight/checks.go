// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// versionTimeout bounds each "<tool> --version" call.
const versionTimeout = 3 * time.Second

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Tool is an external executable the harness will start.
type Tool struct {
	Name string // check name, e.g. "node" or "hyperfine"
	Path string // binary name or path
	Hint string // install suggestion shown on failure
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll checks every tool plus host limits. The ephemeral port check only
// warns.
func RunAll(tools []Tool) *Result {
	result := &Result{
		Checks: make([]Check, 0, len(tools)+2),
		Passed: true,
	}

	for _, tool := range tools {
		c := checkTool(tool)
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	fdCheck := checkFileDescriptors(len(tools))
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	result.Checks = append(result.Checks, checkEphemeralPorts(len(tools)))
	return result
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// checkTool verifies the executable resolves and, if it answers
// --version, records the first line.
func checkTool(tool Tool) Check {
	resolved, err := exec.LookPath(tool.Path)
	if err != nil {
		return Check{
			Name:    tool.Name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", tool.Path, err),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, resolved, "--version").Output()

	version := "unknown"
	if err == nil {
		lines := strings.Split(strings.TrimSpace(string(output)), "\n")
		if len(lines) > 0 && lines[0] != "" {
			version = strings.TrimSpace(lines[0])
		}
	}

	return Check{
		Name:    tool.Name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%s)", resolved, version),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(processes int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}

	// Two pipes per child plus the load tool's curl sockets.
	required := processes*16 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkEphemeralPorts checks the ephemeral range leaves room for the
// per-run port allocation and curl's TIME_WAIT sockets.
func checkEphemeralPorts(processes int) Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}
	return ephemeralCheck(string(data), processes)
}

func ephemeralCheck(portRange string, processes int) Check {
	var low, high int
	if _, err := fmt.Sscanf(portRange, "%d %d", &low, &high); err != nil || high <= low {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unparseable port range %q", strings.TrimSpace(portRange)),
		}
	}
	available := high - low

	recommended := 1000 + processes*100

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true,
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result, tools []Tool) {
	hints := make(map[string]string, len(tools))
	for _, t := range tools {
		hints[t.Name] = t.Hint
	}

	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name, hints[check.Name]))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name, hint string) string {
	if hint != "" {
		return hint
	}
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
