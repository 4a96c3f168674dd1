// Package events delivers SLA violation events to pluggable sinks: the
// structured log, HTTP webhooks and Kafka topics. Remote sinks are usually
// wrapped in a QueuedSink so that a slow or failing destination never
// blocks the monitor that emits the events.
package events
