package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/sonify/logger"
)

// DefaultKeepAlive is below the idle timeout of common proxies.
const DefaultKeepAlive = 30 * time.Second

// ServeOptions tune a single stream.
type ServeOptions struct {
	// Initial is written as the first EventSession payload, so a client sees
	// the current state without waiting for the next change.
	Initial []byte
	// KeepAlive is the comment interval; zero uses DefaultKeepAlive.
	KeepAlive time.Duration
}

// connected is the payload of EventConnected.
type connected struct {
	ClientID string `json:"client_id"`
}

// Serve streams events for clientID until the request context ends, the
// client is unregistered or the hub stops.
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, clientID string, opts ServeOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	log := hub.log.WithContext(r.Context())

	// Streams outlive the server WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not clear write deadline", logger.Fields("client_id", clientID, logger.FieldError, err.Error()))
	}

	client := NewClient(clientID)
	if !hub.Register(client) {
		http.Error(w, "event hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	hello, _ := json.Marshal(connected{ClientID: clientID})
	writeEvent(w, EventConnected, hello)
	if opts.Initial != nil {
		writeEvent(w, EventSession, opts.Initial)
	}
	flusher.Flush()

	interval := opts.KeepAlive
	if interval <= 0 {
		interval = DefaultKeepAlive
	}
	keepAlive := time.NewTicker(interval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", logger.Fields("client_id", clientID))
			return

		case data, ok := <-client.Events():
			if !ok {
				return
			}
			writeEvent(w, EventSession, data)
			flusher.Flush()

		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
