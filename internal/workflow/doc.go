// Package workflow runs the periodic evaluation loop that keeps delivery
// slots planned, queue entries dispatched, and published episodes delivered.
package workflow
