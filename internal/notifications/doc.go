// Package notifications delivers lifecycle events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-category toggles gate published, failure, and cost-limit
// events so operators can subscribe to only what they care about.
//
// Extend this package if you need alternative transports; the scheduling
// core depends only on the Service interface.
package notifications
