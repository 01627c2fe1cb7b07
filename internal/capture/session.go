package capture

import (
	"bufio"
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hujon/ble-monitoring-probe/internal/seriallink"
)

// Mode selects which firmware protocol the session speaks.
type Mode int

const (
	// ModeAdvertising captures pre-decoded advertising records.
	ModeAdvertising Mode = iota
	// ModeRaw captures raw HCI packets for the pcap trace.
	ModeRaw
	// ModeTiming runs the clock comparison test against the beeper
	// firmware.
	ModeTiming
)

// timestampLayout matches the microsecond-precision ISO form the detector
// knows how to parse back.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Session owns one serial link for the lifetime of a capture run.
type Session struct {
	name string
	link seriallink.Link
	sink Sink
	mode Mode

	// Fixed for the session once the init phase completes.
	channel   uint8
	startTime int64 // collector clock minus device clock; µs in capture modes, ms in timing mode

	now func() time.Time
}

// NewSession wires a session to its link and the shared sink.
func NewSession(name string, link seriallink.Link, sink Sink, mode Mode) *Session {
	return &Session{name: name, link: link, sink: sink, mode: mode, now: time.Now}
}

// Run blocks on the start barrier, performs the reset handshake and then
// captures until the link fails. Link I/O errors are fatal to this session
// only; they are logged through the sink and returned.
func (s *Session) Run(barrier *StartBarrier) error {
	barrier.Wait()

	r, err := s.reset()
	if err != nil {
		s.sink.Logf("%s: Error (%v)", s.name, err)
		return err
	}

	switch s.mode {
	case ModeTiming:
		err = s.runTiming(r)
	case ModeRaw:
		err = s.runRaw(r)
	default:
		err = s.runAdvertising(r)
	}
	if err != nil {
		s.sink.Logf("%s: Error (%v)", s.name, err)
	}
	return err
}

// reset pulses the DTR line to reboot the peripheral, drops whatever the
// driver buffered before the reset, and waits for the firmware bootloader's
// "entry" line that marks the start of the main loop. Not retried on failure.
func (s *Session) reset() (*bufio.Reader, error) {
	if err := s.link.SetDTR(false); err != nil {
		return nil, err
	}
	if err := s.link.SetDTR(true); err != nil {
		return nil, err
	}
	if err := s.link.ResetInputBuffer(); err != nil {
		return nil, err
	}

	// The buffered reader is created only after the input flush so it can
	// never hold pre-reset bytes.
	r := bufio.NewReader(s.link)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, "entry ") {
			return r, nil
		}
	}
}

// runTiming consumes the beeper firmware's line protocol and emits one
// TimingRecord per sample, reconciling the device clock on the fly.
func (s *Session) runTiming(r *bufio.Reader) error {
	var (
		startTime           int64
		lastDeviceTime      int64
		lastCollectTime     int64
		lastDeviceTimestamp int64
	)

	s.sink.Logf("- Timing from %s started", s.name)

	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		now := s.now().UnixMilli()
		line := strings.TrimSpace(strings.ToValidUTF8(raw, "�"))

		switch {
		case strings.HasPrefix(line, "Timestamp:"):
			deviceTime, err := strconv.ParseInt(strings.TrimSpace(line[len("Timestamp:"):]), 10, 64)
			if err != nil {
				s.sink.Logf("%s: Error (%v)", s.name, err)
				continue
			}
			deviceTimestamp := startTime + deviceTime
			rec := TimingRecord{
				Device:               s.name,
				CollectorTimestamp:   now,
				CollectorDelta:       now - lastCollectTime,
				DeviceTiming:         deviceTime,
				DeviceTimingDelta:    deviceTime - lastDeviceTime,
				DeviceTimestamp:      deviceTimestamp,
				DeviceTimestampDelta: deviceTimestamp - lastDeviceTimestamp,
				TimeDifference:       now - deviceTimestamp,
			}
			lastCollectTime = now
			lastDeviceTime = deviceTime
			lastDeviceTimestamp = deviceTimestamp
			if err := s.sink.WriteTiming(rec); err != nil {
				return err
			}

		case strings.HasPrefix(line, "Timing started at:"):
			t0, err := strconv.ParseInt(strings.TrimSpace(line[len("Timing started at:"):]), 10, 64)
			if err != nil {
				s.sink.Logf("%s: Error (%v)", s.name, err)
				continue
			}
			lastDeviceTime = t0
			lastCollectTime = s.now().UnixMilli()
			startTime = lastCollectTime - t0
			lastDeviceTimestamp = startTime

			s.sink.Logf("%s: %s", s.name, line)

		default:
			s.sink.Logf("%s: %s", s.name, line)
		}
	}
}

// awaitCaptureStart reads handshake lines until both the capture epoch and
// the channel lock are known. The firmware always sends the channel lock
// last, so that line ends the init phase. Both values stay fixed for the
// session's lifetime.
func (s *Session) awaitCaptureStart(r *bufio.Reader) error {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		now := s.now().UnixMicro()

		switch {
		case strings.HasPrefix(line, "Capture started at:"):
			t0, err := strconv.ParseInt(strings.TrimSpace(line[len("Capture started at:"):]), 10, 64)
			if err != nil {
				return err
			}
			s.startTime = now - t0

		case strings.HasPrefix(line, "Locked to channel:"):
			n, err := strconv.Atoi(strings.TrimSpace(line[len("Locked to channel:"):]))
			if err != nil {
				return err
			}
			s.channel = uint8(n)
			return nil
		}
	}
}

func (s *Session) logCaptureStarted() {
	if s.channel == 0 {
		s.sink.Logf("- %s: Capture started", s.name)
	} else {
		s.sink.Logf("- %s: Capture of channel %d started", s.name, s.channel)
	}
}

// runAdvertising is the steady-state loop for advertising mode: marker,
// frame, repeat, with the resync scan on framing errors.
func (s *Session) runAdvertising(r *bufio.Reader) error {
	if err := s.awaitCaptureStart(r); err != nil {
		return err
	}
	s.logCaptureStarted()

	for {
		err := readMarker(r, MarkerAdvertising)
		if err == nil {
			err = s.emitAdvertisement(r)
		}

		var ferr *FramingError
		if errors.As(err, &ferr) {
			s.sink.Logf("%s: Error (%v)", s.name, ferr)
			if err := resync(r, MarkerAdvertising); err != nil {
				return err
			}
			// Decode exactly one frame at the recovered alignment,
			// then fall back into the marker loop.
			err = s.emitAdvertisement(r)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) emitAdvertisement(r *bufio.Reader) error {
	rec, raw, err := decodeAdvertisingFrame(r)
	if err != nil {
		return err
	}
	rec.Timestamp = time.UnixMicro(s.startTime + raw).Format(timestampLayout)
	return s.sink.WriteAdvertisement(rec)
}

// runRaw is the steady-state loop for raw mode. Before declaring the capture
// started it waits for the controller's scan-enable acknowledgement, so the
// trace never begins with configuration traffic.
func (s *Session) runRaw(r *bufio.Reader) error {
	if err := s.awaitCaptureStart(r); err != nil {
		return err
	}
	if err := s.awaitScanEnabled(r); err != nil {
		return err
	}
	s.logCaptureStarted()

	for {
		err := readMarker(r, MarkerRaw)
		if err == nil {
			err = s.emitRawFrame(r)
		}

		var ferr *FramingError
		if errors.As(err, &ferr) {
			s.sink.Logf("%s: Error in transmission, %v", s.name, ferr)
			if err := resync(r, MarkerRaw); err != nil {
				return err
			}
			err = s.emitRawFrame(r)
		}
		if err != nil {
			return err
		}
	}
}

// awaitScanEnabled discards frames until the LE Set Scan Enable command
// completes on the controller.
func (s *Session) awaitScanEnabled(r *bufio.Reader) error {
	for {
		if err := readMarker(r, MarkerRaw); err != nil {
			var ferr *FramingError
			if errors.As(err, &ferr) {
				continue
			}
			return err
		}
		_, payload, err := decodeRawFrame(r)
		if err != nil {
			return err
		}
		if bytes.Equal(payload, scanEnableComplete) {
			return nil
		}
	}
}

func (s *Session) emitRawFrame(r *bufio.Reader) error {
	raw, payload, err := decodeRawFrame(r)
	if err != nil {
		return err
	}
	stampChannel(payload, s.channel)
	return s.sink.WriteRaw(RawFrame{
		Timestamp: s.startTime + raw,
		Direction: captureDirection,
		Payload:   payload,
	})
}
