package mirror

import (
	"fmt"
	"strconv"
)

// pkt-line framing, shared by HTTPTransport and SSHTransport: a 4-hex-digit
// length prefix (including itself) followed by the payload, terminated by
// a flush-pkt ("0000").
const (
	flushPkt     = "0000"
	maxPktData   = 65516
)

func encodePktLine(data []byte) ([]byte, error) {
	if len(data) > maxPktData {
		return nil, fmt.Errorf("pkt-line payload too large: %d bytes", len(data))
	}
	n := fmt.Sprintf("%04x", len(data)+4)
	return append([]byte(n), data...), nil
}

func encodePktLines(lines ...[]byte) ([]byte, error) {
	var out []byte
	for _, l := range lines {
		enc, err := encodePktLine(l)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return append(out, []byte(flushPkt)...), nil
}

// decodePktLines parses a buffer of pkt-lines up to the first flush-pkt,
// returning each payload line and the bytes left unconsumed after it.
func decodePktLines(b []byte) (lines [][]byte, remainder []byte, err error) {
	for len(b) >= 4 {
		length, err := strconv.ParseInt(string(b[:4]), 16, 32)
		if err != nil {
			return nil, b, fmt.Errorf("pkt-line: bad length prefix: %w", err)
		}
		if length == 0 {
			return lines, b[4:], nil
		}
		if int(length) < 4 || int(length) > len(b) {
			return nil, b, fmt.Errorf("pkt-line: invalid length %d", length)
		}
		lines = append(lines, b[4:length])
		b = b[length:]
	}
	return lines, b, nil
}
