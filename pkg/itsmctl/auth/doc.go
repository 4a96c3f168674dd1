// Package auth implements the itsmctl login flows: password login against the
// ITSM backend, OIDC authorization code with PKCE, device code and client
// credentials. Tokens are kept per context in a JSON file or the OS keychain.
package auth
