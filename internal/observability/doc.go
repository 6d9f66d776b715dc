// Package observability sets up process logging and the Prometheus
// endpoint for the corelink command.
package observability
