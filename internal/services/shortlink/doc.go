// Package shortlink registers public short URLs for unit records against a
// yourls server. Upserts are keyed by unit id, so retries are harmless.
package shortlink
