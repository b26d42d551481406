package preflight

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}

func TestRunAll_WithTools(t *testing.T) {
	tools := []Tool{
		{Name: "shell", Path: "sh"},
		{Name: "sleep", Path: "sleep"},
	}
	result := RunAll(tools)

	if result == nil {
		t.Fatal("RunAll returned nil")
	}
	if len(result.Checks) != len(tools)+2 {
		t.Errorf("Expected %d checks, got %d", len(tools)+2, len(result.Checks))
	}

	for _, name := range []string{"shell", "sleep"} {
		found := false
		for _, check := range result.Checks {
			if check.Name == name {
				found = true
				if !check.Passed {
					t.Errorf("%s check should pass: %s", name, check.Message)
				}
				if !strings.Contains(check.Message, "found at") {
					t.Errorf("Message should mention 'found at': %s", check.Message)
				}
			}
		}
		if !found {
			t.Errorf("Expected %s check in results", name)
		}
	}
}

func TestRunAll_WithMissingTool(t *testing.T) {
	tools := []Tool{
		{Name: "shell", Path: "sh"},
		{Name: "hyperfine", Path: "/nonexistent/hyperfine", Hint: "cargo install hyperfine"},
	}
	result := RunAll(tools)

	failed := result.Failed()
	if len(failed) != 1 || failed[0].Name != "hyperfine" {
		t.Fatalf("Failed() = %+v, want only hyperfine", failed)
	}
	if !strings.Contains(failed[0].Message, "not found") {
		t.Errorf("Message should mention 'not found': %s", failed[0].Message)
	}
	if result.Passed {
		t.Error("Result should fail when a tool is missing")
	}

	var buf bytes.Buffer
	PrintResults(&buf, result, tools)
	if !strings.Contains(buf.String(), "Fix: cargo install hyperfine") {
		t.Errorf("PrintResults should show the tool hint:\n%s", buf.String())
	}
}

func TestCheckTool_EdgeCases(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		if check := checkTool(Tool{Name: "x", Path: ""}); check.Passed {
			t.Error("Empty path should fail")
		}
	})

	t.Run("directory_as_path", func(t *testing.T) {
		if check := checkTool(Tool{Name: "x", Path: t.TempDir()}); check.Passed {
			t.Error("Directory as tool path should fail")
		}
	})

	t.Run("not_executable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tool")
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if check := checkTool(Tool{Name: "x", Path: path}); check.Passed {
			t.Error("Non-executable file should fail")
		}
	})

	t.Run("version_line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tool")
		script := "#!/bin/sh\necho 'tool 1.2.3'\necho 'second line'\n"
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			t.Fatal(err)
		}
		check := checkTool(Tool{Name: "x", Path: path})
		if !check.Passed {
			t.Fatalf("check failed: %s", check.Message)
		}
		if !strings.Contains(check.Message, "(tool 1.2.3)") {
			t.Errorf("Message should carry the version line: %s", check.Message)
		}
	})

	t.Run("version_fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tool")
		if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		check := checkTool(Tool{Name: "x", Path: path})
		if !check.Passed || !strings.Contains(check.Message, "unknown") {
			t.Errorf("found tool without version should pass as unknown: %+v", check)
		}
	})
}

func TestRunAll_EphemeralPortsCheck(t *testing.T) {
	result := RunAll(nil)

	foundPorts := false
	for _, check := range result.Checks {
		if check.Name == "ephemeral_ports" {
			foundPorts = true
			// This check should never fail (only warn)
			if !check.Passed {
				t.Errorf("Ephemeral ports check should always pass (warn at most): %s", check.Message)
			}
		}
	}
	if !foundPorts {
		t.Error("Expected ephemeral_ports check in results")
	}
}

func TestEphemeralCheck(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		warning bool
		actual  int
	}{
		{"wide_range", "32768\t60999\n", false, 28231},
		{"narrow_range", "40000 40100", true, 100},
		{"garbage", "nope", true, 0},
		{"inverted", "5000 4000", true, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			check := ephemeralCheck(tc.input, 4)
			if !check.Passed {
				t.Error("ephemeral check must never fail")
			}
			if check.Warning != tc.warning {
				t.Errorf("Warning = %v, want %v (%s)", check.Warning, tc.warning, check.Message)
			}
			if check.Actual != tc.actual {
				t.Errorf("Actual = %d, want %d", check.Actual, tc.actual)
			}
		})
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		hint     string
		expected string
	}{
		{"file_descriptors", "", "ulimit -n"},
		{"node", "install node", "install node"},
		{"unknown", "", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name, tc.hint)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestCheckFileDescriptors(t *testing.T) {
	check := checkFileDescriptors(4)

	if check.Name != "file_descriptors" {
		t.Errorf("Name = %q, want file_descriptors", check.Name)
	}
	if check.Actual <= 0 {
		t.Errorf("Actual should be positive: %d", check.Actual)
	}
	if check.Required <= 0 {
		t.Errorf("Required should be positive: %d", check.Required)
	}
	if check.Passed != (check.Actual >= check.Required) {
		t.Errorf("Passed = %v with actual=%d, required=%d", check.Passed, check.Actual, check.Required)
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	check1 := checkFileDescriptors(1)
	check10 := checkFileDescriptors(10)

	if check10.Required <= check1.Required {
		t.Error("Required FDs should increase with more processes")
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "test1", Passed: true, Message: "ok"},
			{Name: "file_descriptors", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result, nil)
	out := buf.String()
	if !strings.HasPrefix(out, "Preflight checks:") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "Fix: ulimit -n") {
		t.Errorf("missing fix line:\n%s", out)
	}
}
