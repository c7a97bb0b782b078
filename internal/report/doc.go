// Package report persists completed analyses as reports and renders them for
// download as markdown or JSON. Service implements task.Reporter, so the
// result reference recorded on a completed task is a report ID.
package report
