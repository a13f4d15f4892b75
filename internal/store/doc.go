// Package store persists workbench records in SQLite: the employee and unit
// registries, session snapshots, frozen evidence records, and the publication
// work queue. All writes go through a busy-retry wrapper so concurrent access
// from the daemon and the CLI degrades to short waits instead of errors.
package store
