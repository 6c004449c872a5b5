package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrScheduling marks invalid cadence or timezone configuration.
	// Rejected at the application boundary; never enters the queue.
	ErrScheduling = errors.New("scheduling error")
	// ErrLeaseConflict marks a lost race for a queue entry lease.
	// Expected under concurrency; retried next tick.
	ErrLeaseConflict = errors.New("lease conflict")
	// ErrCostLimit marks a generation rejected by the daily cost guard.
	// Terminal for the slot, no retry.
	ErrCostLimit = errors.New("cost limit exceeded")
	// ErrWorkerUnreachable marks a failure to hand work to the generation worker.
	ErrWorkerUnreachable = errors.New("worker unreachable")
	// ErrWorkerReported marks an error the generation worker reported back.
	ErrWorkerReported = errors.New("worker reported error")
	// ErrInvalidTransition marks a guarded state transition whose precondition
	// no longer held. Logged as a defect; the episode is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFound marks an absent project, episode, or queue entry.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks unusable runtime configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrWorkerReported
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether an error should be routed through the retry
// planner rather than finalizing the slot.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrWorkerUnreachable), errors.Is(err, ErrWorkerReported):
		return true
	default:
		return false
	}
}

// FailureReason maps an error to the short reason string persisted on a
// failed episode.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrCostLimit):
		return "cost_limit_exceeded"
	case errors.Is(err, ErrWorkerUnreachable):
		return "worker_unreachable"
	case errors.Is(err, ErrWorkerReported):
		return "worker_error"
	case errors.Is(err, ErrScheduling):
		return "scheduling_error"
	default:
		return "error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
