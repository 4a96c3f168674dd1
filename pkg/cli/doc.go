// Package cli defines the sla-monitor flags, each with an environment
// variable fallback, and turns them into component configurations.
package cli
