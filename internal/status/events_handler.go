package status

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/pointzerver/internal/events"
)

const keepAliveInterval = 15 * time.Second

// sseStream frames events onto a flushed response.
type sseStream struct {
	w      http.ResponseWriter
	lastID int64
}

func (s *sseStream) send(ev events.Event) error {
	if ev.ID <= s.lastID {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
		return err
	}
	s.lastID = ev.ID
	return nil
}

func (s *sseStream) comment(text string) error {
	_, err := fmt.Fprintf(s.w, ": %s\n\n", text)
	return err
}

// handleEvents handles GET /events: replay since Last-Event-ID, then follow.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before replaying; send drops anything already replayed.
	live, cancel := s.events.Subscribe()
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := &sseStream{w: w, lastID: lastEventID(r)}
	for _, ev := range s.events.SnapshotSince(stream.lastID) {
		if stream.send(ev) != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			err = stream.send(ev)
		case <-keepAlive.C:
			err = stream.comment("keep-alive")
		}
		if err != nil {
			return
		}
		flusher.Flush()
	}
}

func lastEventID(r *http.Request) int64 {
	n, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
