// Package ws implements the WebSocket live feed for the alerting engine.
//
// Hub manages a set of connected clients and broadcasts the engine status
// plus the recent alert activity to all of them on a configurable interval
// (default 5s in production).
//
// New(engine, buffer, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker — blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// snapshot immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "alerts",
//	  "data":  { "running": true, "last_check": "...", "recent": [...] }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
