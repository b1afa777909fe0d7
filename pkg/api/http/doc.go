// Package http exposes the REST API: workflow submission and lifecycle,
// state export/import, synchronous batches, health and Prometheus metrics.
package http
