package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mattjoyce/pointzerver/internal/events"
	"github.com/mattjoyce/pointzerver/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks github.com/mattjoyce/pointzerver/internal/receiver Dispatcher

// Dispatcher applies a decoded command. Implementations must be safe for
// concurrent use; the receiver never assumes exclusive access.
type Dispatcher interface {
	Handle(ctx context.Context, cmd protocol.Command) error
}

// Publisher receives anomaly and batch events. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}

var (
	// ErrSocketClosed is returned by Run when the socket is closed under it.
	ErrSocketClosed = errors.New("command socket closed")

	// ErrDispatchTimeout wraps dispatch failures caused by the dispatch bound.
	ErrDispatchTimeout = errors.New("dispatch timed out")
)

// Options tunes the receive loop. Zero values take the defaults below.
type Options struct {
	BufferSize      int
	SlowThreshold   time.Duration
	BatchSize       int
	DispatchTimeout time.Duration // 0 leaves dispatch unbounded
	LogDecodeErrors bool
}

const (
	DefaultBufferSize    = 1024
	DefaultSlowThreshold = 10 * time.Millisecond
	DefaultBatchSize     = 100
)

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.SlowThreshold <= 0 {
		o.SlowThreshold = DefaultSlowThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Receiver owns the command socket and feeds decoded commands, one at a
// time and in arrival order, to the Dispatcher.
type Receiver struct {
	conn       net.PacketConn
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger
	publisher  Publisher

	stats Stats
	batch *batchStats
}

// New creates a Receiver over an already bound socket. publisher may be nil.
func New(conn net.PacketConn, dispatcher Dispatcher, opts Options, logger *slog.Logger, publisher Publisher) *Receiver {
	opts = opts.withDefaults()
	return &Receiver{
		conn:       conn,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		publisher:  publisher,
		batch:      newBatchStats(opts.BatchSize),
	}
}

// Stats returns a point-in-time copy of the loop counters.
func (r *Receiver) Stats() Snapshot { return r.stats.snapshot() }

// Run receives and dispatches commands until ctx is cancelled. Receive,
// decode and dispatch failures are handled inside the loop; Run only
// returns ctx.Err() or ErrSocketClosed. Run may be called again after it
// returns, but not concurrently.
func (r *Receiver) Run(ctx context.Context) error {
	// Clear the deadline left by a previous Run's cancellation.
	_ = r.conn.SetReadDeadline(time.Time{})

	// Unblock a pending ReadFrom on cancellation. If the hook already
	// started, wait for it so it cannot land after a later Run.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = r.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	buf := make([]byte, r.opts.BufferSize)

	r.logger.Info("command receiver started",
		"addr", r.conn.LocalAddr().String(),
		"buffer_size", r.opts.BufferSize,
		"slow_threshold", r.opts.SlowThreshold.String(),
		"batch_size", r.opts.BatchSize,
	)
	defer r.logger.Info("command receiver stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.iterate(ctx, buf); err != nil {
			return err
		}
	}
}

// iterate runs one Receiving → Decoding → Dispatching cycle. A non-nil
// return is fatal to the loop.
func (r *Receiver) iterate(ctx context.Context, buf []byte) error {
	iterStart := time.Now()

	n, from, err := r.conn.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: %v", ErrSocketClosed, err)
		}
		r.stats.receiveErrors.Add(1)
		r.logger.Error("command receive error", "error", err)
		r.publish(events.TypeReceiveFailed, map[string]string{"error": err.Error()})
		return nil
	}
	r.stats.received.Add(1)
	defer r.checkIteration(iterStart)

	decodeStart := time.Now()
	cmd, err := protocol.Decode(buf[:n])
	decodeDur := time.Since(decodeStart)
	if err != nil {
		r.stats.decodeErrors.Add(1)
		if r.opts.LogDecodeErrors {
			r.logger.Debug("dropped malformed command", "from", addrString(from), "bytes", n, "error", err)
		}
		return nil
	}

	dispatchStart := time.Now()
	err = r.dispatch(ctx, cmd)
	dispatchDur := time.Since(dispatchStart)

	failed := err != nil
	if failed {
		r.stats.dispatchErrors.Add(1)
		r.logger.Error("command dispatch failed", "type", cmd.Type, "from", addrString(from), "error", err)
		r.publish(events.TypeDispatchFailed, map[string]string{"type": string(cmd.Type), "error": err.Error()})
	} else {
		r.stats.dispatched.Add(1)
	}

	total := decodeDur + dispatchDur
	slow := total > r.opts.SlowThreshold
	if slow {
		r.stats.slowCommands.Add(1)
		r.logger.Debug("slow command",
			"type", cmd.Type,
			"decode_us", decodeDur.Microseconds(),
			"dispatch_us", dispatchDur.Microseconds(),
			"total_us", total.Microseconds(),
		)
		r.publish(events.TypeCommandSlow, map[string]any{
			"type":        cmd.Type,
			"decode_us":   decodeDur.Microseconds(),
			"dispatch_us": dispatchDur.Microseconds(),
			"total_us":    total.Microseconds(),
		})
	}

	if report, ok := r.batch.add(total, slow, failed); ok {
		r.stats.batches.Add(1)
		r.stats.lastBatchMean.Store(int64(report.Mean))
		r.logger.Info("command batch average",
			"commands", report.Commands,
			"avg_us", report.Mean.Microseconds(),
			"successful", report.Successful,
			"success_avg_us", report.SuccessMean.Microseconds(),
			"slow", report.Slow,
			"dispatch_errors", report.DispatchErrors,
		)
		r.publish(events.TypeBatchReport, report)
	}
	return nil
}

// dispatch awaits the dispatcher. The dispatcher sees a deadline when
// DispatchTimeout is set, but the loop still waits for it to return so at
// most one command is ever in flight.
func (r *Receiver) dispatch(ctx context.Context, cmd protocol.Command) (err error) {
	if r.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("dispatcher panic: %v", p)
		}
	}()

	err = r.dispatcher.Handle(ctx, cmd)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrDispatchTimeout, r.opts.DispatchTimeout, err)
	}
	return err
}

func (r *Receiver) checkIteration(start time.Time) {
	if d := time.Since(start); d > r.opts.SlowThreshold {
		r.logger.Debug("slow receive iteration", "iteration_us", d.Microseconds())
	}
}

func (r *Receiver) publish(eventType string, data any) {
	if r.publisher != nil {
		r.publisher.Publish(eventType, data)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
