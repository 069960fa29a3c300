// Package sse streams session snapshots to browsers over Server-Sent Events.
//
// A Hub owns the connected clients and fans out messages by glob pattern on
// the client id, so a publisher can address every subscriber of one session
// ("session:<id>:*") without tracking them:
//
//	hub := sse.NewHub(log)
//	go hub.Run()
//	defer hub.Stop()
//
//	hub.BroadcastToPattern("session:abc:*", payload)
//
// Serve is the HTTP side: it registers a client, writes the connected event
// and an optional initial payload, and then relays broadcasts until the
// request ends.
package sse
