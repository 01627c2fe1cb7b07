// Package model implements the per-address anomaly models that infer covert
// connections from the silence between observed advertisements. Models are
// pure, single-threaded state machines with bounded memory; the detection
// engine owns one instance per address.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the outcomes of processing one advertisement.
type Kind int

const (
	// Continue means the sample was absorbed with nothing to report.
	Continue Kind = iota
	// Initialized fires exactly once, when the model has seen enough
	// samples to start alerting. Informational only.
	Initialized
	// Alert means the silence before this sample exceeded what the model
	// considers explicable by advertising jitter.
	Alert
)

// Outcome is the result of feeding one advertisement into a model. Callers
// branch on Kind; the remaining fields are populated per kind.
type Outcome struct {
	Kind Kind

	// State describes the converged parameters. Set on Initialized.
	State string

	// Timestamp (ms) and Duration (ms of silence) of the suspected
	// connection. Set on Alert.
	Timestamp int64
	Duration  int64
}

// ErrInvalidTimestamp rejects zero timestamps: zero is the uninitialised
// lastSeen sentinel and would corrupt the gap arithmetic.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Model consumes the advertisement timestamp stream of a single address.
type Model interface {
	// ProcessAdvertisement absorbs one observation. The timestamp is
	// either integer milliseconds or an ISO-8601-like string.
	ProcessAdvertisement(timestamp string) (Outcome, error)

	// Ready reports whether the initialisation phase has completed.
	Ready() bool

	// Header names the columns of the snapshot text, for the trace file
	// header line.
	Header() string

	// Snapshot renders the current model state for the trace file.
	Snapshot() string
}

// ParseTimestamp accepts either integer milliseconds or an ISO-8601-like
// string, from which only the time-of-day component is kept, converted to
// milliseconds since midnight.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms == 0 {
			return 0, ErrInvalidTimestamp
		}
		return ms, nil
	}

	_, clock, ok := strings.Cut(s, "T")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	parts := strings.SplitN(clock, ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSuffix(parts[2], "Z"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	ms := int64(seconds*1000) + minutes*60000 + hours*3600000
	if ms == 0 {
		return 0, ErrInvalidTimestamp
	}
	return ms, nil
}

// formatFloat renders model parameters with the shortest exact
// representation, keeping trace files compact.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
