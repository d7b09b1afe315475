// Package websocket streams live vehicle state to browser clients.
//
// Clients connect to /ws?session=<id> and only listen. After every tick,
// drive or reset the API server calls BroadcastToSession, and each client
// watching that session receives one JSON message per frame:
//
//	{"session_id": "a1b2", "event": "state_update", "state": {...engine.Snapshot...}}
//
// Other events (session_deleted) carry a free-form data field instead of a
// state.
//
// The Hub owns all client bookkeeping inside its Run loop. Broadcasts are
// queued on a buffered channel and never block the caller; when the queue is
// full the message is dropped and a warning logged. A client whose send
// buffer fills up is disconnected.
//
// Usage:
//
//	hub := websocket.NewHub(log)
//	go hub.Run(ctx)
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
//
// Cancelling ctx stops the loop and closes every connection.
package websocket
