// Package logging builds the slog loggers used across the daemon and CLI.
//
// It offers a console handler for interactive use (single-line output,
// colored levels on TTYs) and a JSON handler for machine consumption, plus
// attribute helpers and the standardized field keys components log under.
package logging
