// Package sink serializes collector output. One Sink instance is shared by
// every capture session; a single mutex covers record rows, the pcap trace
// and diagnostic lines so concurrent sessions never interleave output.
package sink

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hujon/ble-monitoring-probe/internal/capture"
)

// ErrNotConfigured is returned when a record type does not match the mode
// the sink was opened for.
var ErrNotConfigured = errors.New("sink not configured for this record type")

// linkTypeHCIH4WithPhdr is LINKTYPE_BLUETOOTH_HCI_H4_WITH_PHDR: each packet
// is prefixed with a 4-byte big-endian direction word.
const linkTypeHCIH4WithPhdr = layers.LinkType(201)

const pcapSnapLen = 65536

var advertisingHeader = []string{
	"Timestamp", "Address", "AddressType", "AdvertisingType", "RSSI", "Channel", "DeviceName",
}

var timingHeader = []string{
	"Device", "Collector Timestamp", "Collector Timestamp Delta",
	"Device Timing", "Device Timing Delta",
	"Device Timestamp", "Device Timestamp Delta", "Time Difference",
}

// Sink implements capture.Sink for one of the three capture modes.
type Sink struct {
	mu      sync.Mutex
	records *csv.Writer    // advertising or timing rows
	trace   *pcapgo.Writer // raw mode only
	logw    io.Writer
}

// NewAdvertisingSink prepares a sink writing advertising CSV rows to w and
// diagnostics to logw. The header row is written immediately.
func NewAdvertisingSink(w, logw io.Writer) (*Sink, error) {
	s := &Sink{records: csv.NewWriter(w), logw: logw}
	if err := s.writeRow(advertisingHeader); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return s, nil
}

// NewTimingSink prepares a sink writing timing-test CSV rows to w.
func NewTimingSink(w, logw io.Writer) (*Sink, error) {
	s := &Sink{records: csv.NewWriter(w), logw: logw}
	if err := s.writeRow(timingHeader); err != nil {
		return nil, fmt.Errorf("write timing header: %w", err)
	}
	return s, nil
}

// NewRawSink prepares a sink writing a pcap trace of HCI frames to w.
func NewRawSink(w, logw io.Writer) (*Sink, error) {
	tw := pcapgo.NewWriter(w)
	if err := tw.WriteFileHeader(pcapSnapLen, linkTypeHCIH4WithPhdr); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Sink{trace: tw, logw: logw}, nil
}

// writeRow appends one CSV row and flushes it, so rows from a crashed run
// are not lost to buffering.
func (s *Sink) writeRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return ErrNotConfigured
	}
	if err := s.records.Write(row); err != nil {
		return err
	}
	s.records.Flush()
	return s.records.Error()
}

// WriteAdvertisement appends one advertising record row.
func (s *Sink) WriteAdvertisement(rec capture.AdvertisingRecord) error {
	return s.writeRow([]string{
		rec.Timestamp,
		rec.Address,
		strconv.Itoa(int(rec.AddressType)),
		strconv.Itoa(int(rec.AdvertisingType)),
		strconv.Itoa(int(rec.RSSI)),
		strconv.Itoa(int(rec.Channel)),
		rec.DeviceName,
	})
}

// WriteTiming appends one timing-test row.
func (s *Sink) WriteTiming(rec capture.TimingRecord) error {
	return s.writeRow([]string{
		rec.Device,
		strconv.FormatInt(rec.CollectorTimestamp, 10),
		strconv.FormatInt(rec.CollectorDelta, 10),
		strconv.FormatInt(rec.DeviceTiming, 10),
		strconv.FormatInt(rec.DeviceTimingDelta, 10),
		strconv.FormatInt(rec.DeviceTimestamp, 10),
		strconv.FormatInt(rec.DeviceTimestampDelta, 10),
		strconv.FormatInt(rec.TimeDifference, 10),
	})
}

// WriteRaw appends one HCI frame to the pcap trace, prefixed with the
// direction pseudo-header.
func (s *Sink) WriteRaw(frame capture.RawFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trace == nil {
		return ErrNotConfigured
	}

	data := make([]byte, 4+len(frame.Payload))
	binary.BigEndian.PutUint32(data[0:4], frame.Direction)
	copy(data[4:], frame.Payload)

	return s.trace.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.UnixMicro(frame.Timestamp),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

// Logf emits one diagnostic line under the same lock as the record writers.
func (s *Sink) Logf(format string, v ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.logw, format+"\n", v...)
}

// Close flushes buffered rows. The underlying files remain owned by the
// caller.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records != nil {
		s.records.Flush()
		return s.records.Error()
	}
	return nil
}
