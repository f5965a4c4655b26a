// Package report defines the stress-run Report and a durable outbox for
// reports on Pebble. Each entry moves NEW → SENT → ACKED (or FAILED and
// back through SENT on retry) as the broadcaster relays it.
package report
