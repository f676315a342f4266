package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filepin/internal/events"
)

const ssePingInterval = 25 * time.Second

// handleJobStream serves the live job-event stream over SSE. Ownership
// filtering happens here: a connection only sees events for its own
// objects. There is no replay; events published before the connection
// opened are gone.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	owner := ownerID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before the hello goes out: a client that saw the hello must
	// not miss events published right after.
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected"}`)
	flusher.Flush()

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-ping.C:
			// Comment line; keeps proxies from closing the idle stream.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case ev, open := <-ch:
			if !open {
				return
			}
			if !s.eventVisible(ev, owner) {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn(r.Context(), "failed to marshal event", "type", ev.Type, "error", err.Error())
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// eventVisible reports whether the event belongs to the connection's
// owner. Events without an owner id are operational broadcasts and stay
// visible.
func (s *Server) eventVisible(ev events.Event, owner string) bool {
	return ev.OwnerID == "" || ev.OwnerID == owner
}
