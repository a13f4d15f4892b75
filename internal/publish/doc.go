// Package publish drains the publication queue: workers lease due rows from
// the store, deliver the evidence record to the row's external target, and
// settle or reschedule the row. Failed rows come back on an exponential
// schedule recorded in the row itself, so workers never sleep on a backoff.
package publish
