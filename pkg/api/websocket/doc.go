// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/workflows/:id/ws to receive the workflow's
// lifecycle and task events as they happen.
package websocket
