package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchStatsResetsAtSize(t *testing.T) {
	b := newBatchStats(100)

	for i := 0; i < 99; i++ {
		_, full := b.add(2*time.Millisecond, false, false)
		assert.False(t, full, "no report before the 100th command (i=%d)", i)
	}
	assert.Equal(t, 99, b.count)
	assert.Equal(t, 198*time.Millisecond, b.sum)

	report, full := b.add(4*time.Millisecond, true, true)
	assert.True(t, full)
	assert.Equal(t, 100, report.Commands)
	assert.Equal(t, 2020*time.Microsecond, report.Mean)
	assert.Equal(t, 1, report.Slow)
	assert.Equal(t, 1, report.DispatchErrors)
	assert.Equal(t, 99, report.Successful)
	assert.Equal(t, 2*time.Millisecond, report.SuccessMean, "the failed 4ms command is excluded")

	assert.Equal(t, 0, b.count)
	assert.Equal(t, time.Duration(0), b.sum)
	assert.Equal(t, time.Duration(0), b.okSum)
	assert.Equal(t, 100, b.size)
}

func TestBatchStatsSecondBatch(t *testing.T) {
	b := newBatchStats(3)
	b.add(time.Millisecond, false, false)
	b.add(time.Millisecond, false, false)
	_, full := b.add(time.Millisecond, false, false)
	assert.True(t, full)

	b.add(3*time.Millisecond, false, false)
	b.add(3*time.Millisecond, false, false)
	report, full := b.add(3*time.Millisecond, false, false)
	assert.True(t, full)
	assert.Equal(t, 3*time.Millisecond, report.Mean)
}

func TestBatchStatsAllFailed(t *testing.T) {
	b := newBatchStats(2)
	b.add(time.Millisecond, false, true)
	report, full := b.add(3*time.Millisecond, false, true)
	assert.True(t, full)
	assert.Equal(t, 2*time.Millisecond, report.Mean)
	assert.Equal(t, 0, report.Successful)
	assert.Equal(t, time.Duration(0), report.SuccessMean)
	assert.Equal(t, 2, report.DispatchErrors)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultBufferSize, o.BufferSize)
	assert.Equal(t, DefaultSlowThreshold, o.SlowThreshold)
	assert.Equal(t, DefaultBatchSize, o.BatchSize)
	assert.Equal(t, time.Duration(0), o.DispatchTimeout)
}
