// Package evidence freezes a finished session into an immutable, publishable
// record. Assembly is a pure function: no I/O, no clocks beyond the ones
// already recorded in the session, so identical input always yields an
// identical payload and content hash.
package evidence
