// Package daemon ties the bench services together: it enforces
// single-instance execution with a lock file, runs the workbench supervisor
// and publication pipeline, and exposes the local HTTP API.
package daemon
