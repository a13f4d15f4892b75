// Package datalog submits evidence references to the append-only ledger
// node. Submission is not idempotent, so callers must pair Submit with
// QueryByPayloadHash to reconcile after lost confirmations.
package datalog
