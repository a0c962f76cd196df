package errors

import (
	"strings"
	"testing"
)

func TestNewIncludesLocation(t *testing.T) {
	err := New("step %d failed", 3)
	if !strings.HasPrefix(err.Error(), "[errors_test.go:") {
		t.Errorf("Expected location prefix, got %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), "step 3 failed") {
		t.Errorf("Expected formatted message, got %q", err.Error())
	}
}

func TestWrapfKeepsChain(t *testing.T) {
	base := Sentinel("boom")
	wrapped := Wrapf(base, "while doing %s", "work")
	if !Is(wrapped, base) {
		t.Fatalf("Expected wrapped error to match sentinel")
	}
	if !strings.Contains(wrapped.Error(), "while doing work: boom") {
		t.Errorf("Unexpected message %q", wrapped.Error())
	}
	if Wrapf(nil, "ignored") != nil {
		t.Errorf("Expected Wrapf(nil) to return nil")
	}
}
