// Package logging wraps log/slog with the attribute helpers and well-known
// field names used across the daemon. Components never construct handlers
// themselves; they receive a *slog.Logger and narrow it with
// NewComponentLogger.
package logging
