package api

import (
	"errors"
	"testing"
	"time"
)

func TestStatsRecorderSamples(t *testing.T) {
	var entries uint64
	rec := NewStatsRecorder(func() (uint64, uint64, int32) {
		entries += 100
		return entries, 2, 1
	}, nil)

	base := time.Unix(1000, 0)
	rec.sample(base)
	rec.sample(base.Add(5 * time.Second))

	got := rec.Samples()
	if len(got) != 2 {
		t.Fatalf("got %d samples", len(got))
	}
	if got[0].Entries != 100 || got[1].Entries != 200 {
		t.Errorf("entries = %d, %d", got[0].Entries, got[1].Entries)
	}
	if !got[1].Timestamp.After(got[0].Timestamp) {
		t.Error("samples out of order")
	}
}

func TestStatsRecorderBoundsHistory(t *testing.T) {
	rec := NewStatsRecorder(func() (uint64, uint64, int32) { return 0, 0, 0 }, nil)
	rec.cap = 3

	base := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		rec.sample(base.Add(time.Duration(i) * time.Second))
	}

	got := rec.Samples()
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Errorf("oldest kept sample at %v", got[0].Timestamp)
	}
}

func TestStatsRecorderPersists(t *testing.T) {
	var persisted int
	rec := NewStatsRecorder(
		func() (uint64, uint64, int32) { return 7, 0, 1 },
		func(ts time.Time, entries, dropped uint64, clients int32) error {
			persisted++
			if entries != 7 {
				t.Errorf("persisted entries = %d", entries)
			}
			return nil
		},
	)

	rec.sample(time.Now())
	if persisted != 1 {
		t.Errorf("persist called %d times", persisted)
	}
}

func TestStatsRecorderPersistErrorKeepsSampling(t *testing.T) {
	rec := NewStatsRecorder(
		func() (uint64, uint64, int32) { return 1, 0, 0 },
		func(time.Time, uint64, uint64, int32) error { return errors.New("disk full") },
	)

	rec.sample(time.Now())
	rec.sample(time.Now())
	if len(rec.Samples()) != 2 {
		t.Errorf("samples = %d, want 2", len(rec.Samples()))
	}
}
