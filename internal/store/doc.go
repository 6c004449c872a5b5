// Package store persists projects, episodes, queue entries, planning notes,
// and cost records in SQLite. All cross-process coordination happens through
// the database: idempotent episode creation rides the slot unique constraint,
// at most one live queue entry per episode is enforced by a partial unique
// index, and lease claims are conditional updates whose affected-row count
// decides the winner.
package store
