// Package retryplan schedules retry attempts for failed generations against
// fixed checkpoints anchored to the delivery instant. Attempts always target
// the next checkpoint still ahead of the clock; checkpoints that have already
// passed are skipped rather than compressed.
package retryplan

import (
	"fmt"
	"sort"
	"time"

	"cadence/internal/config"
)

// Planner computes retry checkpoints from delivery-relative offsets.
type Planner struct {
	offsets []time.Duration
}

// New builds a planner from the configured checkpoint offsets, given in
// minutes before delivery. Offsets are normalized to strictly decreasing
// order so the largest lead comes first.
func New(cfg *config.Config) *Planner {
	minutes := cfg.Scheduling.RetryCheckpointsMinutes
	offsets := make([]time.Duration, 0, len(minutes))
	for _, m := range minutes {
		if m <= 0 {
			continue
		}
		offsets = append(offsets, time.Duration(m)*time.Minute)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] > offsets[j] })
	return &Planner{offsets: offsets}
}

// Offsets returns the planner's checkpoint offsets, largest lead first.
func (p *Planner) Offsets() []time.Duration {
	out := make([]time.Duration, len(p.offsets))
	copy(out, p.offsets)
	return out
}

// Checkpoints materializes the absolute checkpoint instants for a delivery.
func (p *Planner) Checkpoints(delivery time.Time) []time.Time {
	points := make([]time.Time, 0, len(p.offsets))
	for _, offset := range p.offsets {
		points = append(points, delivery.Add(-offset))
	}
	return points
}

// Next returns the earliest checkpoint strictly after now and strictly
// before delivery. ok is false when no checkpoint remains, which makes the
// slot's failure final.
func (p *Planner) Next(delivery, now time.Time) (at time.Time, ok bool) {
	for _, point := range p.Checkpoints(delivery) {
		if point.After(now) && point.Before(delivery) {
			return point, true
		}
	}
	return time.Time{}, false
}

// Describe renders the checkpoint schedule for logs and status output.
func (p *Planner) Describe() string {
	if len(p.offsets) == 0 {
		return "no retry checkpoints"
	}
	out := ""
	for i, offset := range p.offsets {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("T-%s", offset)
	}
	return out
}
