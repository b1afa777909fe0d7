// Package storage provides workflow state persistence implementations.
//
// Implementations:
//   - redis: JSON documents with TTL
//   - memory: map-backed store for tests and embedded use
package storage
