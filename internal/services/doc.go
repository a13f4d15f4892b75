// Package services holds the clients for external collaborators (peripheral
// gateway, content store, ledger, short-link registrar) together with the
// shared error classification scheme the pipeline uses to decide whether a
// failure is retryable.
package services
