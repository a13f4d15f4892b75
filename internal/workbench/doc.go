// Package workbench hosts the bench supervisor: the single owner of the
// bench's active session. It resolves scans against the record store,
// mediates the camera and label printer around stage boundaries, and drives
// finalization through evidence assembly into the publication queue. All
// supervisor methods are safe for concurrent use; at most one non-terminal
// session exists per bench at any time.
package workbench
