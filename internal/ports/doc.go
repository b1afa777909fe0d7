// Package ports declares the interfaces at the engine boundary.
//
// The engine depends only on these interfaces; adapters under pkg/adapters
// provide the concrete implementations (Redis Streams event bus, Prometheus
// metrics, the remote agent backend).
package ports
