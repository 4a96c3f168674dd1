// Package metrics defines the Prometheus metrics for the ITSM client and the
// SLA monitor, covering backend requests, monitor polls, violation events,
// event sink delivery and mail delivery.
package metrics
