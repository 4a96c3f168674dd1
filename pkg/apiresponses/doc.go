// Package apiresponses holds the JSON error body and response helpers shared
// by the gin handlers and middleware.
package apiresponses
