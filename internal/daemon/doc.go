// Package daemon wires the scheduling workflow and the HTTP API into a
// single-instance background service guarded by a file lock.
package daemon
