// Command cadence is the operator CLI for the episode scheduling daemon. It
// inspects the queue directly through the shared SQLite database and drives
// project lifecycle changes through the daemon's HTTP API.
package main
