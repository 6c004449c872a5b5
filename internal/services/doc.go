// Package services defines the error taxonomy shared by the scheduling core.
//
// Sentinel errors classify failures for routing: lease conflicts retry next
// tick, worker failures go through the retry planner, cost limit rejections
// finalize the slot, and invalid transitions are surfaced as defects without
// touching the episode.
package services
