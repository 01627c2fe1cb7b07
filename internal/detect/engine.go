// Package detect replays a previously captured advertisement stream through
// per-address anomaly models and records the alerts they raise.
package detect

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/hujon/ble-monitoring-probe/internal/model"
	"github.com/hujon/ble-monitoring-probe/internal/monitoring"
)

// Detector variant names accepted on the command line.
const (
	VariantSimpleStatistics = "simple_statistics"
	VariantSlidingWindow    = "sliding_window"
)

// ModelFactory creates a fresh anomaly model for a newly seen address.
type ModelFactory func() model.Model

// Factory resolves a variant name to its model constructor.
func Factory(name string) (ModelFactory, error) {
	switch name {
	case VariantSimpleStatistics:
		return func() model.Model { return model.NewSimpleStatistics() }, nil
	case VariantSlidingWindow:
		return func() model.Model { return model.NewSlidingWindow() }, nil
	default:
		return nil, fmt.Errorf("unknown detector %q", name)
	}
}

// AlertFunc receives every alert the engine emits, in addition to the alert
// CSV row. Used to archive alerts into a database.
type AlertFunc func(address string, timestamp, duration int64) error

// Engine dispatches capture rows to per-address models. It is
// single-threaded: the capture is static and ordering within one address is
// all the models care about.
type Engine struct {
	factory ModelFactory
	models  map[string]model.Model
	onAlert AlertFunc
}

// NewEngine creates an engine producing models from the given factory.
func NewEngine(factory ModelFactory) *Engine {
	return &Engine{
		factory: factory,
		models:  make(map[string]model.Model),
	}
}

// SetAlertFunc installs an additional alert consumer.
func (e *Engine) SetAlertFunc(fn AlertFunc) {
	e.onAlert = fn
}

// Run reads advertisement rows from capture (CSV with a header row naming at
// least Address and Timestamp), writes alert rows to alerts and one model
// snapshot row per processed record to trace. Model-level failures are
// logged and skipped; they never abort the run.
func (e *Engine) Run(capture io.Reader, alerts, trace io.Writer) error {
	cr := csv.NewReader(capture)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read capture header: %w", err)
	}
	addrIdx, tsIdx := -1, -1
	for i, col := range header {
		switch col {
		case "Address":
			addrIdx = i
		case "Timestamp":
			tsIdx = i
		}
	}
	if addrIdx < 0 || tsIdx < 0 {
		return fmt.Errorf("capture header missing Address/Timestamp columns: %v", header)
	}

	aw := csv.NewWriter(alerts)
	if err := aw.Write([]string{"Address", "Timestamp", "Duration"}); err != nil {
		return fmt.Errorf("write alert header: %w", err)
	}

	// Snapshot text is already comma-joined by the model, so the trace is
	// written as plain lines rather than through a CSV writer.
	tw := bufio.NewWriter(trace)
	if _, err := fmt.Fprintf(tw, "bdaddr,%s\n", e.factory().Header()); err != nil {
		return fmt.Errorf("write trace header: %w", err)
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read capture row: %w", err)
		}
		if addrIdx >= len(row) || tsIdx >= len(row) {
			monitoring.Logf("skipping short capture row: %v", row)
			continue
		}
		address, timestamp := row[addrIdx], row[tsIdx]

		m, ok := e.models[address]
		if !ok {
			m = e.factory()
			e.models[address] = m
		}

		outcome, perr := m.ProcessAdvertisement(timestamp)
		switch {
		case perr != nil:
			monitoring.Logf("error occurred while processing %s at %s: %v", address, timestamp, perr)
		case outcome.Kind == model.Alert:
			if err := aw.Write([]string{
				address,
				strconv.FormatInt(outcome.Timestamp, 10),
				strconv.FormatInt(outcome.Duration, 10),
			}); err != nil {
				return fmt.Errorf("write alert row: %w", err)
			}
			if e.onAlert != nil {
				if err := e.onAlert(address, outcome.Timestamp, outcome.Duration); err != nil {
					return fmt.Errorf("record alert: %w", err)
				}
			}
		}

		// Every record leaves a trace row regardless of outcome; the
		// trace is the full per-address state trajectory.
		if _, err := fmt.Fprintf(tw, "%s,%s\n", address, m.Snapshot()); err != nil {
			return fmt.Errorf("write trace row: %w", err)
		}
	}

	aw.Flush()
	if err := aw.Error(); err != nil {
		return fmt.Errorf("flush alerts: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	return nil
}
