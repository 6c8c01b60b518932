package receiver

import "time"

// BatchReport summarises one full batch of dispatched commands. Mean
// covers every command in the batch; SuccessMean only those the
// dispatcher accepted.
type BatchReport struct {
	Commands       int           `json:"commands"`
	Mean           time.Duration `json:"mean_ns"`
	Successful     int           `json:"successful"`
	SuccessMean    time.Duration `json:"success_mean_ns"`
	Slow           int           `json:"slow"`
	DispatchErrors int           `json:"dispatch_errors"`
}

// batchStats accumulates per-command durations and resets after every
// size commands. Only the loop goroutine touches it.
type batchStats struct {
	size   int
	count  int
	sum    time.Duration
	okSum  time.Duration
	slow   int
	failed int
}

func newBatchStats(size int) *batchStats {
	return &batchStats{size: size}
}

// add records one command. On the size-th command it returns the report
// for the batch and resets.
func (b *batchStats) add(d time.Duration, slow, failed bool) (BatchReport, bool) {
	b.sum += d
	b.count++
	if slow {
		b.slow++
	}
	if failed {
		b.failed++
	} else {
		b.okSum += d
	}
	if b.count < b.size {
		return BatchReport{}, false
	}

	report := BatchReport{
		Commands:       b.count,
		Mean:           b.sum / time.Duration(b.count),
		Successful:     b.count - b.failed,
		Slow:           b.slow,
		DispatchErrors: b.failed,
	}
	if report.Successful > 0 {
		report.SuccessMean = b.okSum / time.Duration(report.Successful)
	}
	*b = batchStats{size: b.size}
	return report, true
}
