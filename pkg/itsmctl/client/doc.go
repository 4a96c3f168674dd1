// Package client is the typed HTTP client for the ITSM /api/v1 backend.
//
// Every resource has its own service reached through an accessor on Client
// (Tickets, Incidents, SLA, CMDB, ServiceCatalogs, ServiceRequests,
// Dashboard and Auth). Responses are unwrapped from the backend's
// {code, message, data} envelope; failures surface as *HTTPError or
// *APIError carrying the request ID that was sent in X-Request-Id.
package client
