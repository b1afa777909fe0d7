// Package agent provides agent backend implementations.
//
// The factory selects a backend from configuration. Currently supported:
//   - anthropic: tasks execute as Claude messages
//   - local: in-process handler registry for tests and embedding
package agent
