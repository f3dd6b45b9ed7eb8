// Package timing records how long pipeline stages take.
package timing

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Summary aggregates the recorded durations of one operation
type Summary struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Total     time.Duration `json:"total_ns"`
	Mean      time.Duration `json:"mean_ns"`
	StdDev    time.Duration `json:"stddev_ns"`
	Max       time.Duration `json:"max_ns"`
}

// maxSamples caps the durations kept per operation
const maxSamples = 4096

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	enabled bool
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		enabled: true,
	}
}

// StartTiming returns a context carrying the start time of operation
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	if !tt.isEnabled() {
		return ctx
	}

	return context.WithValue(ctx, timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

// EndTiming records the time elapsed since the matching StartTiming
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	if !tt.isEnabled() {
		return 0
	}

	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return 0
	}

	duration := time.Since(timingInfo.StartTime)
	tt.Record(timingInfo.Operation, duration)
	return duration
}

// Record adds a measured duration directly
func (tt *Tracker) Record(operation string, duration time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	samples := append(tt.timings[operation], duration)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	tt.timings[operation] = samples
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	return tt.Summarize(operation).Mean
}

// Summarize computes count, mean, standard deviation and max for operation
func (tt *Tracker) Summarize(operation string) Summary {
	timings := tt.GetTimings(operation)
	summary := Summary{Operation: operation, Count: len(timings)}
	if len(timings) == 0 {
		return summary
	}

	values := make([]float64, len(timings))
	for i, d := range timings {
		values[i] = float64(d)
		summary.Total += d
		summary.Max = max(summary.Max, d)
	}

	mean, std := stat.MeanStdDev(values, nil)
	summary.Mean = time.Duration(mean)
	if len(values) > 1 {
		summary.StdDev = time.Duration(std)
	}
	return summary
}

// Summaries returns a summary for every recorded operation, sorted by name
func (tt *Tracker) Summaries() []Summary {
	tt.mu.RLock()
	operations := make([]string, 0, len(tt.timings))
	for operation := range tt.timings {
		operations = append(operations, operation)
	}
	tt.mu.RUnlock()

	sort.Strings(operations)
	out := make([]Summary, len(operations))
	for i, operation := range operations {
		out[i] = tt.Summarize(operation)
	}
	return out
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

func (tt *Tracker) isEnabled() bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.enabled
}

func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}
