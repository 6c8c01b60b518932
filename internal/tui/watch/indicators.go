package watch

import (
	"fmt"
	"strings"
	"time"
)

// Heartbeat flips on every successful status poll. A frozen heartbeat
// means the service stopped answering.
type Heartbeat struct {
	frames   []string
	index    int
	lastBeat time.Time
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{frames: []string{"♡", "♥"}}
}

func (h *Heartbeat) Beat(now time.Time) {
	h.index = (h.index + 1) % len(h.frames)
	h.lastBeat = now
}

func (h Heartbeat) Current() string {
	return h.frames[h.index]
}

// Stale reports whether no poll succeeded within window.
func (h Heartbeat) Stale(now time.Time, window time.Duration) bool {
	return h.lastBeat.IsZero() || now.Sub(h.lastBeat) > window
}

// Rate derives commands per second from successive received counters.
type Rate struct {
	lastCount uint64
	lastAt    time.Time
	perSecond float64
}

func (r *Rate) Observe(count uint64, at time.Time) {
	if !r.lastAt.IsZero() && count >= r.lastCount {
		if elapsed := at.Sub(r.lastAt).Seconds(); elapsed > 0 {
			r.perSecond = float64(count-r.lastCount) / elapsed
		}
	}
	r.lastCount = count
	r.lastAt = at
}

func (r Rate) PerSecond() float64 { return r.perSecond }

func (r Rate) String() string {
	return fmt.Sprintf("%.1f/s", r.perSecond)
}

// Spinner lights up on anomalies and fades over ten seconds.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func (s *Spinner) OnEvent(now time.Time) {
	s.dots = 5
	s.lastEvent = now
}

// Decay drops one dot per two seconds of quiet.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	left := 5 - int(now.Sub(s.lastEvent)/(2*time.Second))
	s.dots = max(0, min(5, left))
}

func (s Spinner) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < s.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (s Spinner) LastEvent() time.Time {
	return s.lastEvent
}
