// Package mail sends SLA violation alerts by email: SMTP delivery with retry,
// HTML templates, a background queue and an events.Sink that routes each
// alert to the recipients of the escalation level due.
package mail
