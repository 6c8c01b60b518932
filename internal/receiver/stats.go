package receiver

import (
	"sync/atomic"
	"time"
)

// Stats are the loop's counters. Written by the loop, read by the status
// endpoint.
type Stats struct {
	received       atomic.Uint64
	decodeErrors   atomic.Uint64
	dispatched     atomic.Uint64
	dispatchErrors atomic.Uint64
	receiveErrors  atomic.Uint64
	slowCommands   atomic.Uint64
	batches        atomic.Uint64
	lastBatchMean  atomic.Int64 // nanoseconds
}

// Snapshot is a copy of Stats suitable for JSON.
type Snapshot struct {
	Received        uint64 `json:"received"`
	DecodeErrors    uint64 `json:"decode_errors"`
	Dispatched      uint64 `json:"dispatched"`
	DispatchErrors  uint64 `json:"dispatch_errors"`
	ReceiveErrors   uint64 `json:"receive_errors"`
	SlowCommands    uint64 `json:"slow_commands"`
	Batches         uint64 `json:"batches"`
	LastBatchMeanUS int64  `json:"last_batch_mean_us"`
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		Received:        s.received.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		Dispatched:      s.dispatched.Load(),
		DispatchErrors:  s.dispatchErrors.Load(),
		ReceiveErrors:   s.receiveErrors.Load(),
		SlowCommands:    s.slowCommands.Load(),
		Batches:         s.batches.Load(),
		LastBatchMeanUS: time.Duration(s.lastBatchMean.Load()).Microseconds(),
	}
}
