// Package lifecycle drives episode state after dispatch: worker callbacks
// (progress, completion, failure), retry re-arming against checkpoint plans,
// delivery, cadence advancement, and project mutations (pause, resume,
// cadence and timezone changes, planning notes).
package lifecycle
