// Package ratelimit provides per-client token-bucket rate limiting middleware
// for the gin servers, with automatic stale-entry cleanup.
package ratelimit
