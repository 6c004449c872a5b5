// Package config loads, normalizes, and validates Cadence configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: scheduling lead time and retry checkpoints, queue lease
// settings, the cost circuit breaker, worker endpoints, and notification
// topics.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
