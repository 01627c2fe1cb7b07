// Package capture implements the per-device capture session: it drives the
// reset handshake with the peripheral firmware, reconciles the device clock
// against the collector clock, decodes the binary frame stream and forwards
// records to a shared sink.
package capture

// AdvertisingRecord is one decoded advertising observation. Immutable once
// emitted; consumed exactly once by the sink.
type AdvertisingRecord struct {
	// Timestamp is the reconciled absolute time, ISO formatted with
	// microsecond precision.
	Timestamp string

	// Address is the 6-byte device address in colon-hex display order
	// (reversed relative to wire order).
	Address string

	AddressType     uint8
	AdvertisingType uint8

	// Channel is the RF channel the session is locked to; 0 means the
	// peripheral is hopping.
	Channel uint8

	RSSI int8

	// DeviceName is decoded permissively; invalid bytes are replaced,
	// never fatal.
	DeviceName string
}

// RawFrame is one HCI packet captured in raw mode.
type RawFrame struct {
	// Timestamp is the reconciled absolute time in microseconds.
	Timestamp int64

	// Direction is the H4-with-PHDR pseudo-header direction tag. Fixed at
	// capture time, carried verbatim into the trace.
	Direction uint32

	// Payload is the HCI H4 packet, type byte included.
	Payload []byte
}

// captureDirection tags every raw frame; the peripheral only ever forwards
// controller output, so the tag never varies within a trace.
const captureDirection uint32 = 0

// TimingRecord is one clock comparison sample from timing-test mode.
type TimingRecord struct {
	Device string

	// Collector-side wall clock, milliseconds.
	CollectorTimestamp int64
	CollectorDelta     int64

	// Raw device-relative timing value and its delta.
	DeviceTiming      int64
	DeviceTimingDelta int64

	// Device timing reconciled into the collector's clock domain.
	DeviceTimestamp      int64
	DeviceTimestampDelta int64

	// Collector clock minus reconciled device clock.
	TimeDifference int64
}

// Sink receives every record a session produces, plus its diagnostic output.
// Implementations must serialize all writes behind a single lock; sessions
// run concurrently and share one sink.
type Sink interface {
	WriteAdvertisement(AdvertisingRecord) error
	WriteRaw(RawFrame) error
	WriteTiming(TimingRecord) error

	// Logf emits one diagnostic line through the same lock as the record
	// writers, keeping interleaved output readable.
	Logf(format string, v ...any)
}
