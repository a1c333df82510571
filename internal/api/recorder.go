package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// defaultSampleCap bounds the in-memory throughput history; at a 5s sample
// interval this covers the last hour of a session.
const defaultSampleCap = 720

// SnapshotFunc reads the log sink's current counters.
type SnapshotFunc func() (entries, dropped uint64, clients int32)

// PersistFunc writes one sample to durable storage. Optional.
type PersistFunc func(ts time.Time, entries, dropped uint64, clients int32) error

// StatsRecorder periodically samples the log sink counters into a bounded
// in-memory ring for the throughput chart, and optionally persists each
// sample. It implements StatsSource.
type StatsRecorder struct {
	snapshot SnapshotFunc
	persist  PersistFunc

	mu      sync.Mutex
	samples []StatsSample
	cap     int
}

// NewStatsRecorder wires a snapshot source and an optional persist function.
func NewStatsRecorder(snapshot SnapshotFunc, persist PersistFunc) *StatsRecorder {
	return &StatsRecorder{
		snapshot: snapshot,
		persist:  persist,
		cap:      defaultSampleCap,
	}
}

// Run samples at the given interval until the context ends.
func (r *StatsRecorder) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sample(time.Now())
		}
	}
}

func (r *StatsRecorder) sample(ts time.Time) {
	entries, dropped, clients := r.snapshot()
	s := StatsSample{
		Timestamp: ts,
		Entries:   entries,
		Dropped:   dropped,
		Clients:   clients,
	}

	r.mu.Lock()
	r.samples = append(r.samples, s)
	if len(r.samples) > r.cap {
		r.samples = r.samples[len(r.samples)-r.cap:]
	}
	r.mu.Unlock()

	if r.persist != nil {
		if err := r.persist(ts, entries, dropped, clients); err != nil {
			log.Printf("[Stats] failed to persist sample: %v", err)
		}
	}
}

// Samples returns a snapshot of the in-memory history, oldest first.
func (r *StatsRecorder) Samples() []StatsSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatsSample, len(r.samples))
	copy(out, r.samples)
	return out
}
