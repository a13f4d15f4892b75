// Package session implements the per-workbench assembly session state
// machine. It is purely in-memory: peripheral outcomes are reported to it,
// never awaited by it, and persistence is the caller's concern.
package session
