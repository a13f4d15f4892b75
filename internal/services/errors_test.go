package services_test

import (
	"errors"
	"strings"
	"testing"

	"benchd/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	underlying := errors.New("connection refused")
	err := services.Wrap(services.ErrTransient, "ledger", "submit", "node unreachable", underlying)

	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected wrapped error to match marker")
	}
	if !errors.Is(err, underlying) {
		t.Fatal("expected wrapped error to retain cause")
	}
	if !strings.Contains(err.Error(), "ledger: submit") {
		t.Fatalf("expected service context in message, got %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "ipfs", "publish", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("nil marker should default to transient")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "s", "op", "", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "s", "op", "", nil), false},
		{"transient", services.Wrap(services.ErrTransient, "s", "op", "", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "s", "op", "", nil), true},
		{"plain", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
