// Package httpapi exposes the daemon's HTTP surface: the callback endpoints
// the generation worker reports to, project management, planning notes, and
// queue/status reads.
package httpapi
