package model

import (
	"fmt"
	"math"
)

// simpleStatisticsInitSamples is how many gap samples the model averages
// before it starts alerting.
const simpleStatisticsInitSamples = 10

// SimpleStatistics tracks the typical inter-advertisement silence as a
// running midpoint, and the largest deviation from it ever observed as the
// alert threshold. The model keeps adapting after initialisation, so its
// sensitivity drifts with the device's behaviour over the whole run.
type SimpleStatistics struct {
	lastSeen      int64
	midpoint      float64
	threshold     float64
	remainingInit int
}

// NewSimpleStatistics returns an uninitialised model.
func NewSimpleStatistics() *SimpleStatistics {
	return &SimpleStatistics{remainingInit: simpleStatisticsInitSamples}
}

// Ready reports whether the initialisation samples have been consumed.
func (m *SimpleStatistics) Ready() bool {
	return m.remainingInit <= 0
}

// ProcessAdvertisement folds one observation into the model.
func (m *SimpleStatistics) ProcessAdvertisement(timestamp string) (Outcome, error) {
	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return Outcome{}, err
	}

	if m.lastSeen == 0 {
		// First sighting only seeds the clock.
		m.lastSeen = ts
		return Outcome{}, nil
	}

	gap := ts - m.lastSeen
	m.lastSeen = ts

	if m.midpoint == 0 {
		m.midpoint = float64(gap)
		return Outcome{}, nil
	}

	delta := math.Abs(m.midpoint - float64(gap))

	if m.remainingInit > 0 {
		m.adapt(float64(gap), delta)
		m.remainingInit--
		if m.remainingInit <= 0 {
			return Outcome{
				Kind:  Initialized,
				State: formatFloat(m.midpoint) + "," + formatFloat(m.threshold),
			}, nil
		}
		return Outcome{}, nil
	}

	if delta > 2*m.threshold {
		return Outcome{Kind: Alert, Timestamp: ts, Duration: gap}, nil
	}
	m.adapt(float64(gap), delta)
	return Outcome{}, nil
}

func (m *SimpleStatistics) adapt(gap, delta float64) {
	m.midpoint = (m.midpoint + gap) / 2
	if delta > m.threshold {
		m.threshold = delta
	}
}

// Header names the snapshot columns.
func (m *SimpleStatistics) Header() string {
	return "lastTimestamp,midpoint,threshold"
}

// Snapshot renders the current state for the trace file.
func (m *SimpleStatistics) Snapshot() string {
	return fmt.Sprintf("%d,%s,%s", m.lastSeen, formatFloat(m.midpoint), formatFloat(m.threshold))
}
