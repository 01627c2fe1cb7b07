package model

import (
	"errors"
	"strconv"
	"testing"
)

// feed pushes integer-millisecond timestamps through a model and returns the
// outcomes, failing the test on any processing error.
func feed(t *testing.T, m Model, timestamps ...int64) []Outcome {
	t.Helper()
	outcomes := make([]Outcome, 0, len(timestamps))
	for _, ts := range timestamps {
		o, err := m.ProcessAdvertisement(strconv.FormatInt(ts, 10))
		if err != nil {
			t.Fatalf("processing %d: %v", ts, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// periodic returns n timestamps starting at start with the given period.
func periodic(start, period int64, n int) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = start + int64(i)*period
	}
	return ts
}

func TestSimpleStatistics_InitializesOnPeriodicStream(t *testing.T) {
	m := NewSimpleStatistics()

	// 12 timestamps = seed + midpoint seed + 10 init samples.
	outcomes := feed(t, m, periodic(1000, 100, 12)...)

	var initialized int
	for i, o := range outcomes {
		switch o.Kind {
		case Initialized:
			initialized++
			if i != 11 {
				t.Errorf("Initialized at sample %d, expected 11", i)
			}
		case Alert:
			t.Errorf("unexpected alert at sample %d", i)
		}
	}
	if initialized != 1 {
		t.Fatalf("expected exactly one Initialized, got %d", initialized)
	}
	if !m.Ready() {
		t.Error("model not ready after initialisation")
	}

	// A perfectly periodic stream converges the midpoint to the period and
	// the threshold to zero.
	if got := m.Snapshot(); got != "2100,100,0" {
		t.Errorf("unexpected snapshot %q", got)
	}
}

func TestSimpleStatistics_AlertsOnLongSilence(t *testing.T) {
	m := NewSimpleStatistics()
	feed(t, m, periodic(1000, 100, 12)...)

	o := feed(t, m, 2100+5000)[0]
	if o.Kind != Alert {
		t.Fatalf("expected Alert, got %v", o.Kind)
	}
	if o.Duration != 5000 {
		t.Errorf("expected duration 5000, got %d", o.Duration)
	}
	if o.Timestamp != 7100 {
		t.Errorf("expected timestamp 7100, got %d", o.Timestamp)
	}
}

func TestSimpleStatistics_KeepsAdaptingAfterInit(t *testing.T) {
	m := NewSimpleStatistics()
	feed(t, m, periodic(1000, 100, 12)...)

	// A gap within tolerance must not alert, and must move the midpoint
	// and threshold: the detector is never frozen.
	before := m.Snapshot()
	o := feed(t, m, 2100+100)[0]
	if o.Kind != Continue {
		t.Fatalf("expected Continue, got %v", o.Kind)
	}
	if m.Snapshot() == before {
		t.Error("snapshot unchanged, expected post-init adaptation")
	}
}

func TestSimpleStatistics_FirstCallOnlySeeds(t *testing.T) {
	m := NewSimpleStatistics()
	o := feed(t, m, 1000)[0]
	if o.Kind != Continue {
		t.Fatalf("expected Continue, got %v", o.Kind)
	}
	if m.Ready() {
		t.Error("model ready after a single sample")
	}
	if got := m.Snapshot(); got != "1000,0,0" {
		t.Errorf("unexpected snapshot %q", got)
	}
}

func TestSimpleStatistics_RejectsZeroTimestamp(t *testing.T) {
	m := NewSimpleStatistics()
	_, err := m.ProcessAdvertisement("0")
	if !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}
