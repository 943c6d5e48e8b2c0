// Package rtcm implements a bounded RTCM3 inspector: a streaming
// parser that classifies frames, extracts station geography and
// descriptors, tracks per-type cadence and bitrate, and emits a pure
// InspectionResult for the registry to apply to a mount's STR row.
//
// Grounded on gnssgo's pkg/gnssgo/rtcm package: the preamble,
// length and type extraction in rtcm.go's extractMessage, and the
// 1005/1006/1033 bit-field layouts in station.go. Bit-level primitives
// are ported from FengXuebin-gnssgo/src/common.go, which gnssgo's own
// package calls but the retrieved copy doesn't define.
package rtcm

import "errors"

const preamble = 0xD3

// Frame errors let a caller tell "not enough bytes yet" apart from
// "this isn't RTCM at all".
var (
	ErrIncomplete  = errors.New("rtcm: incomplete frame")
	ErrBadPreamble = errors.New("rtcm: preamble not found")
	ErrBadCRC      = errors.New("rtcm: crc24q mismatch")
)

// Frame is one parsed RTCM3 message: header, payload and CRC all
// still present in Raw (the CRC check and the decoders index into it using
// bit offsets that assume the full frame, preamble included).
type Frame struct {
	Type      int
	StationID uint16
	Raw       []byte // full frame: 3-byte header + payload + 3-byte CRC
}

// payload returns the frame's message payload, i.e. Raw with the
// 3-byte header and 3-byte CRC trailer stripped.
func (f Frame) payload() []byte {
	return f.Raw[3 : len(f.Raw)-3]
}

// Reader incrementally extracts RTCM3 frames from a byte stream. It
// owns no I/O; callers push bytes in with Feed and drain frames with
// Next. The forwarder pipes it a duplicated copy of the producer's
// bytes via Forwarder.RegisterSubscriberPipe — the Reader never
// touches a socket itself.
type Reader struct {
	buf []byte
}

// NewReader creates an empty frame reader.
func NewReader() *Reader {
	return &Reader{buf: make([]byte, 0, 4096)}
}

// Feed appends newly received bytes to the reader's internal buffer.
func (r *Reader) Feed(data []byte) {
	r.buf = append(r.buf, data...)
}

// Next extracts the next complete frame from the buffer, if any. It
// returns (frame, true) on success, (Frame{}, false) if the buffer
// holds no complete frame yet (callers should Feed more and retry),
// and discards and resyncs past garbage bytes automatically — a
// malformed frame never wedges the reader, so inspector errors never
// affect the data still being forwarded to consumers.
func (r *Reader) Next() (Frame, bool) {
	for {
		if len(r.buf) < 3 {
			return Frame{}, false
		}
		if r.buf[0] != preamble {
			// Resync: scan for the next preamble byte.
			idx := indexByte(r.buf[1:], preamble)
			if idx < 0 {
				r.buf = r.buf[:0]
				return Frame{}, false
			}
			r.buf = r.buf[1+idx:]
			continue
		}

		msgLen := int(getBitU(r.buf, 14, 10))
		total := msgLen + 6 // 3-byte header + payload + 3-byte CRC
		if len(r.buf) < total {
			return Frame{}, false
		}

		frame := Frame{
			Raw: append([]byte(nil), r.buf[:total]...),
		}
		if crc24Q(frame.Raw[:total-3]) != getBitU(frame.Raw, (total-3)*8, 24) {
			// Bad CRC: drop this preamble byte and resync rather than
			// discarding the whole buffer.
			r.buf = r.buf[1:]
			continue
		}
		frame.Type = int(getBitU(frame.Raw, 24, 12))
		frame.StationID = uint16(getBitU(frame.Raw, 36, 12))
		r.buf = r.buf[total:]
		return frame, true
	}
}

func indexByte(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}
