// Package api serves the SLA monitor over HTTP: liveness and readiness
// checks, Prometheus metrics and read-only JSON views of the latest
// violation snapshot.
package api
