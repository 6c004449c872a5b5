// Package dispatch runs the per-tick scheduling pass: reclaiming expired
// leases, materializing slots for due projects, leasing eligible entries,
// checking the cost guard, invoking the generation worker, and delivering
// published episodes whose slot has arrived. Every claim is arbitrated by
// the store, so multiple dispatchers can run against the same database.
package dispatch
