// Package cmd implements the cobra command tree of itsmctl: authentication,
// the catalog, SLA, CMDB, ticket, incident and service request resources,
// local escalation rules, the dashboard and the configuration file.
package cmd
