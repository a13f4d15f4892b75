// Package metrics exposes Prometheus instrumentation for the bench daemon:
// session lifecycle counters, publication outcomes per target, and queue
// occupancy. The recorder is nil-safe so callers never guard their
// increments.
package metrics
