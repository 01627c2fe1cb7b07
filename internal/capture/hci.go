package capture

// HCI H4 constants for the two packet shapes the raw capture path inspects.
const (
	h4PacketTypeEvent        = 0x04
	hciEventLEMeta           = 0x3e
	leMetaAdvertisingReport  = 0x02
	advertisingReportHdrSize = 9 // event type, address type, 6B address, data length
)

// scanEnableComplete is the Command Complete event for LE Set Scan Enable
// (opcode 0x200c). Its arrival marks the controller actually scanning, so raw
// capture is not declared started before it.
var scanEnableComplete = []byte{0x04, 0x0e, 0x04, 0x05, 0x0c, 0x20, 0x00}

// stampChannel overwrites the per-report RSSI byte of every report in an LE
// Advertising Report event with the session's locked channel. Raw capture
// deliberately sacrifices report-level RSSI to preserve channel provenance,
// since the trace format has nowhere else to put it. Payloads that are not
// advertising reports, or that are truncated, are left untouched.
func stampChannel(payload []byte, channel byte) {
	if len(payload) < 5 || payload[0] != h4PacketTypeEvent || payload[1] != hciEventLEMeta {
		return
	}
	if int(payload[2]) > len(payload)-3 || payload[3] != leMetaAdvertisingReport {
		return
	}
	reports := int(payload[4])
	off := 5
	for i := 0; i < reports; i++ {
		if off+advertisingReportHdrSize > len(payload) {
			return
		}
		dataLen := int(payload[off+advertisingReportHdrSize-1])
		rssiOff := off + advertisingReportHdrSize + dataLen
		if rssiOff >= len(payload) {
			return
		}
		payload[rssiOff] = channel
		off = rssiOff + 1
	}
}
