// Package notifications delivers bench events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Enumerated event types cover session milestones and publication
// outcomes so callers can emit consistent messages without duplicating HTTP
// glue. Per-category switches in the configuration suppress whole event
// groups.
//
// Extend this package if you need alternative transports; all bench code
// depends only on the simple Service interface.
package notifications
