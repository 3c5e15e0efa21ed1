// Package observability builds the service logger and the Prometheus
// collectors shared by the generation service, the pipeline and the HTTP
// surface.
package observability
