package model

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// MinAdvertisingInterval is the minimum legal interval for low duty cycle
// advertising per the Bluetooth Core specification, in milliseconds. The
// monitored IoT devices advertise at low duty cycle, so shorter gaps are
// treated as duplicates or capture glitches and discarded.
const MinAdvertisingInterval = 20

// slidingWindowSize fixes the gap window at 11 samples, enough for a stable
// median while still following slow interval changes.
const slidingWindowSize = 11

// SlidingWindow keeps a fixed-length window of recent inter-advertisement
// gaps and alerts when a new gap exceeds twice the window mean plus one
// sample standard deviation: two missed advertisements mean a whole
// advertising event was skipped, which is what a connection looks like from
// the outside.
type SlidingWindow struct {
	lastSeen      int64
	window        []float64
	remainingInit int
}

// NewSlidingWindow returns an uninitialised model.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		window:        make([]float64, 0, slidingWindowSize),
		remainingInit: slidingWindowSize,
	}
}

// Ready reports whether the window has been filled.
func (m *SlidingWindow) Ready() bool {
	return m.remainingInit <= 0
}

// ProcessAdvertisement folds one observation into the model.
func (m *SlidingWindow) ProcessAdvertisement(timestamp string) (Outcome, error) {
	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return Outcome{}, err
	}

	if m.lastSeen == 0 {
		m.lastSeen = ts
		return Outcome{}, nil
	}

	gap := ts - m.lastSeen
	// lastSeen advances even when the sample is discarded below. Inherited
	// behaviour; see DESIGN.md for the drift implications.
	m.lastSeen = ts

	if gap < MinAdvertisingInterval {
		return Outcome{}, nil
	}

	if m.remainingInit > 0 {
		m.window = append(m.window, float64(gap))
		m.remainingInit--
		if m.remainingInit <= 0 {
			return Outcome{
				Kind:  Initialized,
				State: fmt.Sprintf("%s, %s", formatWindow(m.window), formatFloat(median(m.window))),
			}, nil
		}
		return Outcome{}, nil
	}

	mean := stat.Mean(m.window, nil)
	stddev := stat.StdDev(m.window, nil)

	if float64(gap) > 2*mean+stddev {
		return Outcome{Kind: Alert, Timestamp: ts, Duration: gap}, nil
	}

	// Slide: evict the oldest gap, append the newest.
	copy(m.window, m.window[1:])
	m.window[len(m.window)-1] = float64(gap)
	return Outcome{}, nil
}

// Header names the snapshot columns. Note the historical mismatch: the
// header advertises the median, but live snapshots report the window mean
// (the median only ever appears in the Initialized state text). Preserved
// as-is so traces stay comparable with earlier captures.
func (m *SlidingWindow) Header() string {
	return "lastTimestamp,window,median,std_deviation"
}

// Snapshot renders the current state for the trace file. The statistics are
// blank until the window holds at least two samples.
func (m *SlidingWindow) Snapshot() string {
	if len(m.window) < 2 {
		return fmt.Sprintf("%d,%s,,", m.lastSeen, formatWindow(m.window))
	}
	return fmt.Sprintf("%d,%s,%s,%s",
		m.lastSeen,
		formatWindow(m.window),
		formatFloat(stat.Mean(m.window, nil)),
		formatFloat(stat.StdDev(m.window, nil)),
	)
}

// median returns the middle element of the (odd-sized) window.
func median(window []float64) float64 {
	sorted := slices.Clone(window)
	slices.Sort(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// formatWindow renders the gap window as a bracketed list without commas,
// keeping the snapshot a fixed number of CSV columns.
func formatWindow(window []float64) string {
	parts := make([]string, len(window))
	for i, g := range window {
		parts[i] = formatFloat(g)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
