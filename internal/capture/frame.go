package capture

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Frame markers emitted by the capture firmware ahead of each binary record.
var (
	MarkerAdvertising = [4]byte{'A', 'd', 'v', ':'}
	MarkerRaw         = [4]byte{'B', 'L', 'E', ':'}
)

// FramingError reports bytes read where a frame marker was expected. It is
// recoverable: the session rescans the stream for the next marker.
type FramingError struct {
	Prefix []byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("message starts with 0x%s", hex.EncodeToString(e.Prefix))
}

// readMarker consumes 4 bytes and checks them against the expected marker.
func readMarker(r io.Reader, want [4]byte) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return err
	}
	if got != want {
		return &FramingError{Prefix: append([]byte(nil), got[:]...)}
	}
	return nil
}

// resync scans the stream one byte at a time until the exact marker sequence
// appears. Partial matches ("AdXv:") do not trigger; a byte that breaks a
// partial match is re-checked as a potential first marker byte so overlapping
// candidates ("AAdv:") are not lost. The scan is unbounded: if the marker
// never reappears this blocks until the link errors out. Inherited fail-open
// behaviour, see DESIGN.md.
func resync(r io.ByteReader, marker [4]byte) error {
	matched := 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case b == marker[matched]:
			matched++
			if matched == len(marker) {
				return nil
			}
		case b == marker[0]:
			matched = 1
		default:
			matched = 0
		}
	}
}

// decodeAdvertisingFrame reads the fixed-layout body following an Adv:
// marker. The returned timestamp is still device-relative.
func decodeAdvertisingFrame(r io.Reader) (rec AdvertisingRecord, rawTimestamp int64, err error) {
	// 8B timestamp, 6B address, address type, event type, channel, RSSI,
	// name length.
	var fixed [19]byte
	if _, err = io.ReadFull(r, fixed[:]); err != nil {
		return rec, 0, err
	}

	rawTimestamp = int64(binary.LittleEndian.Uint64(fixed[0:8]))
	rec.Address = FormatAddress(fixed[8:14])
	rec.AddressType = fixed[14]
	rec.AdvertisingType = fixed[15]
	rec.Channel = fixed[16]
	rec.RSSI = int8(fixed[17])

	name := make([]byte, int(fixed[18]))
	if _, err = io.ReadFull(r, name); err != nil {
		return rec, 0, err
	}
	// Names are advisory data from the air; bad bytes are replaced rather
	// than rejected (Bluetooth Core 5.4 Vol 4 Part E, 6.23).
	rec.DeviceName = strings.ToValidUTF8(string(name), "�")

	return rec, rawTimestamp, nil
}

// decodeRawFrame reads the body following a BLE: marker: a device-relative
// microsecond timestamp and a length-prefixed HCI payload.
func decodeRawFrame(r io.Reader) (rawTimestamp int64, payload []byte, err error) {
	var fixed [10]byte
	if _, err = io.ReadFull(r, fixed[:]); err != nil {
		return 0, nil, err
	}
	rawTimestamp = int64(binary.LittleEndian.Uint64(fixed[0:8]))
	payload = make([]byte, int(binary.LittleEndian.Uint16(fixed[8:10])))
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return rawTimestamp, payload, nil
}

// FormatAddress renders the 6 wire-order address bytes as conventional
// colon-separated hex, most significant byte first.
func FormatAddress(wire []byte) string {
	parts := make([]string, len(wire))
	for i, b := range wire {
		parts[len(wire)-1-i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
