// Package api serves the HTTP interface: authentication, task submission,
// status, cancellation and streaming, and report retrieval. Handlers translate
// HTTP requests into calls on the task coordinator and report service and map
// their errors to status codes without exposing internals.
package api
