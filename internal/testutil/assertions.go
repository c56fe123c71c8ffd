package testutil

import (
	"strings"
	"testing"
)

// AssertContains fails the test if output does not contain expected.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("output does not contain expected string\nExpected to find: %q\nIn output:\n%s", expected, truncateForError(output))
	}
}

// AssertNotContains fails the test if output contains unexpected.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("output contains unexpected string\nDid not expect to find: %q\nIn output:\n%s", unexpected, truncateForError(output))
	}
}

// truncateForError truncates output for error messages to avoid huge logs.
func truncateForError(s string) string {
	const maxLen = 2000
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [truncated]"
}
