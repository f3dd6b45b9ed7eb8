package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tr := NewTracker()
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		tr.Record("inference", d)
	}

	s := tr.Summarize("inference")
	assert.Equal(t, Summary{
		Operation: "inference",
		Count:     3,
		Total:     6 * time.Second,
		Mean:      2 * time.Second,
		StdDev:    time.Second,
		Max:       3 * time.Second,
	}, s)
	assert.Equal(t, 2*time.Second, tr.GetAverageTime("inference"))

	empty := tr.Summarize("missing")
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.Mean)
}

func TestStartEndTiming(t *testing.T) {
	tr := NewTracker()

	ctx := tr.StartTiming(context.Background(), "decode")
	time.Sleep(2 * time.Millisecond)
	d := tr.EndTiming(ctx)

	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
	assert.Len(t, tr.GetTimings("decode"), 1)

	// no matching start
	assert.Zero(t, tr.EndTiming(context.Background()))
}

func TestDisabledTrackerRecordsNothing(t *testing.T) {
	tr := NewTracker()
	tr.SetEnabled(false)

	ctx := tr.StartTiming(context.Background(), "encode")
	assert.Zero(t, tr.EndTiming(ctx))
	assert.Empty(t, tr.GetTimings("encode"))
}

func TestSummariesSortedAndReset(t *testing.T) {
	tr := NewTracker()
	tr.Record("save", time.Millisecond)
	tr.Record("load", time.Millisecond)
	tr.Record("composite", time.Millisecond)

	var ops []string
	for _, s := range tr.Summaries() {
		ops = append(ops, s.Operation)
	}
	assert.Equal(t, []string{"composite", "load", "save"}, ops)

	tr.Reset("load")
	assert.Len(t, tr.Summaries(), 2)
	tr.Reset("")
	assert.Empty(t, tr.Summaries())
}

func TestRecordCapsSamples(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < maxSamples+10; i++ {
		tr.Record("tile", time.Duration(i))
	}

	timings := tr.GetTimings("tile")
	assert.Len(t, timings, maxSamples)
	assert.Equal(t, time.Duration(10), timings[0])
}
