// Package discovery answers LAN clients looking for the command service and
// periodically broadcasts the same announcement.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// ProbeString is the plain-text probe accepted besides the JSON form.
const ProbeString = "POINTZERVER_DISCOVER"

// Announcement tells a client where to send commands.
type Announcement struct {
	Type        string `json:"type"` // always "announce"
	Service     string `json:"service"`
	ID          string `json:"id"`
	Hostname    string `json:"hostname"`
	IP          string `json:"ip,omitempty"`
	CommandPort int    `json:"command_port"`
	Version     string `json:"version"`
}

type probe struct {
	Type string `json:"type"`
}

// IsProbe reports whether payload is a discovery request.
func IsProbe(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	if string(trimmed) == ProbeString {
		return true
	}
	var p probe
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return false
	}
	return p.Type == "discover"
}

// Options configures the beacon.
type Options struct {
	// Interval between unsolicited broadcasts; 0 disables them.
	Interval         time.Duration
	BroadcastAddress string
	BroadcastPort    int
}

// Beacon answers probes on its socket and broadcasts announcements.
type Beacon struct {
	conn    *net.UDPConn
	payload []byte
	opts    Options
	logger  *slog.Logger
}

// New builds a Beacon on a bound socket.
func New(conn *net.UDPConn, ann Announcement, opts Options, logger *slog.Logger) (*Beacon, error) {
	ann.Type = "announce"
	payload, err := json.Marshal(ann)
	if err != nil {
		return nil, fmt.Errorf("encode announcement: %w", err)
	}
	return &Beacon{conn: conn, payload: payload, opts: opts, logger: logger}, nil
}

// Run serves probes until ctx is cancelled or the socket is closed.
// Per-packet errors are logged and never stop the beacon. The periodic
// broadcaster is stopped before Run returns.
func (b *Beacon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = b.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	if b.opts.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.broadcastLoop(ctx)
		}()
	}

	b.logger.Info("discovery beacon started", "addr", b.conn.LocalAddr().String(), "interval", b.opts.Interval.String())

	buf := make([]byte, 512)
	for {
		n, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("discovery socket closed: %w", err)
			}
			b.logger.Error("discovery receive error", "error", err)
			continue
		}
		if !IsProbe(buf[:n]) {
			continue
		}
		if _, err := b.conn.WriteToUDP(b.payload, from); err != nil {
			b.logger.Error("discovery reply failed", "to", from.String(), "error", err)
			continue
		}
		b.logger.Debug("discovery probe answered", "from", from.String())
	}
}

func (b *Beacon) broadcastLoop(ctx context.Context) {
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(b.opts.BroadcastAddress, strconv.Itoa(b.opts.BroadcastPort)))
	if err != nil {
		b.logger.Error("invalid broadcast address", "address", b.opts.BroadcastAddress, "error", err)
		return
	}

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		b.announce(dst)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Beacon) announce(dst *net.UDPAddr) {
	if _, err := b.conn.WriteToUDP(b.payload, dst); err != nil {
		// Hosts without a broadcast route fail here on every tick.
		b.logger.Debug("discovery broadcast failed", "to", dst.String(), "error", err)
	}
}
