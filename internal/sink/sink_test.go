package sink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/hujon/ble-monitoring-probe/internal/capture"
)

func TestAdvertisingSink_WritesHeaderAndRows(t *testing.T) {
	var out, logs bytes.Buffer
	s, err := NewAdvertisingSink(&out, &logs)
	if err != nil {
		t.Fatal(err)
	}

	err = s.WriteAdvertisement(capture.AdvertisingRecord{
		Timestamp:       "2024-03-01T10:00:00.001000",
		Address:         "06:05:04:03:02:01",
		AddressType:     1,
		AdvertisingType: 3,
		Channel:         37,
		RSSI:            -60,
		DeviceName:      "beacon",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "Timestamp,Address,AddressType,AdvertisingType,RSSI,Channel,DeviceName" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "2024-03-01T10:00:00.001000,06:05:04:03:02:01,1,3,-60,37,beacon" {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestTimingSink_WritesHeaderAndRows(t *testing.T) {
	var out, logs bytes.Buffer
	s, err := NewTimingSink(&out, &logs)
	if err != nil {
		t.Fatal(err)
	}

	err = s.WriteTiming(capture.TimingRecord{
		Device:               "beeper",
		CollectorTimestamp:   1000,
		CollectorDelta:       10,
		DeviceTiming:         990,
		DeviceTimingDelta:    10,
		DeviceTimestamp:      1001,
		DeviceTimestampDelta: 10,
		TimeDifference:       -1,
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Device,Collector Timestamp,") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "beeper,1000,10,990,10,1001,10,-1" {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestRawSink_WritesPcapTrace(t *testing.T) {
	var out, logs bytes.Buffer
	s, err := NewRawSink(&out, &logs)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte{0x04, 0x3e, 0x02, 0x01, 0x00}
	err = s.WriteRaw(capture.RawFrame{Timestamp: 1_000_000, Direction: 0, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}

	trace := out.Bytes()
	if len(trace) < 24+16+4+len(payload) {
		t.Fatalf("trace too short: %d bytes", len(trace))
	}

	// Classic pcap magic, microsecond resolution.
	if !bytes.Equal(trace[0:4], []byte{0xd4, 0xc3, 0xb2, 0xa1}) {
		t.Errorf("unexpected magic %x", trace[0:4])
	}
	if lt := binary.LittleEndian.Uint32(trace[20:24]); lt != 201 {
		t.Errorf("link type = %d, expected 201 (HCI H4 with phdr)", lt)
	}

	// The packet body is the direction word followed by the HCI bytes.
	body := trace[24+16:]
	if !bytes.Equal(body[0:4], []byte{0, 0, 0, 0}) {
		t.Errorf("direction prefix = %x", body[0:4])
	}
	if !bytes.Equal(body[4:], payload) {
		t.Errorf("payload = %x", body[4:])
	}
}

func TestSink_RejectsMismatchedRecords(t *testing.T) {
	var out, logs bytes.Buffer

	adv, err := NewAdvertisingSink(&out, &logs)
	if err != nil {
		t.Fatal(err)
	}
	if err := adv.WriteRaw(capture.RawFrame{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("advertising sink accepted a raw frame: %v", err)
	}

	raw, err := NewRawSink(&out, &logs)
	if err != nil {
		t.Fatal(err)
	}
	if err := raw.WriteAdvertisement(capture.AdvertisingRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("raw sink accepted an advertising record: %v", err)
	}
	if err := raw.WriteTiming(capture.TimingRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("raw sink accepted a timing record: %v", err)
	}
}

func TestSink_LogfWritesLines(t *testing.T) {
	var out, logs bytes.Buffer
	s, err := NewAdvertisingSink(&out, &logs)
	if err != nil {
		t.Fatal(err)
	}

	s.Logf("- %s: Capture of channel %d started", "dev0", 37)
	s.Logf("%s: Error (%v)", "dev0", errors.New("boom"))

	want := "- dev0: Capture of channel 37 started\ndev0: Error (boom)\n"
	if logs.String() != want {
		t.Errorf("logs = %q, expected %q", logs.String(), want)
	}
}
