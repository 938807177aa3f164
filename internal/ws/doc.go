// Package ws streams live entity statuses over WebSocket.
//
// Hub manages the connected clients and broadcasts the current entity list
// on a fixed interval. ServeHTTP upgrades the connection and sends the
// current state immediately, so a dashboard has data on connect.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  [ /* same schema as GET /api/v1/entities */ ]
//	}
//
// The upgrader accepts all origins; restrict them at the reverse proxy.
// The endpoint is mounted at /ws/stream by the daemon.
package ws
