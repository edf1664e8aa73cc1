package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"timeout", errors.New("connection timeout"), ClassTransient},
		{"unavailable", errors.New("service unavailable"), ClassTransient},
		{"rate limit", errors.New("too many requests"), ClassTransient},
		{"in progress", errors.New("operation in progress, try later"), ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"wrapped deadline", fmt.Errorf("query failed: %w", context.DeadlineExceeded), ClassTransient},

		{"not found", errors.New("table not found"), ClassDeterministic},
		{"permission", errors.New("permission denied"), ClassDeterministic},
		{"validation", errors.New("missing required field name"), ClassDeterministic},
		{"duplicate", errors.New("duplicate key value violates unique constraint"), ClassDeterministic},

		// Unknown errors are treated as transient with a bounded
		// number of retries
		{"unknown", errors.New("something odd happened"), ClassTransient},

		// Both patterns match: deterministic wins
		{"ambiguous", errors.New("permission denied: connection timeout"), ClassDeterministic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(errors.New("connection reset by peer")) {
		t.Error("Expected connection reset to be transient")
	}
	if IsTransient(errors.New("record not found")) {
		t.Error("Expected not found to be deterministic")
	}
}
