package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesMarker(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrWorkerUnreachable, "dispatcher", "invoke", "posting payload", cause)
	if !errors.Is(err, ErrWorkerUnreachable) {
		t.Fatalf("expected marker preserved, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
}

func TestWrapNilMarkerDefaultsToWorkerReported(t *testing.T) {
	err := Wrap(nil, "callbacks", "error", "stage research", nil)
	if !errors.Is(err, ErrWorkerReported) {
		t.Fatalf("expected default marker, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Wrap(ErrWorkerUnreachable, "a", "b", "c", nil), true},
		{Wrap(ErrWorkerReported, "a", "b", "c", nil), true},
		{Wrap(ErrCostLimit, "a", "b", "c", nil), false},
		{Wrap(ErrScheduling, "a", "b", "c", nil), false},
		{fmt.Errorf("plain"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestFailureReason(t *testing.T) {
	if got := FailureReason(Wrap(ErrCostLimit, "guard", "check", "", nil)); got != "cost_limit_exceeded" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := FailureReason(errors.New("misc")); got != "error" {
		t.Fatalf("unexpected reason %q", got)
	}
}
