package scpi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readBlock consumes an IEEE 488.2 definite-length block from r:
// '#' <n> <n digits of length> <payload> [terminator]. Instruments that
// answer a block query in plain ASCII (no leading '#') get the line
// returned verbatim so callers can fall back to ASCII decoding.
func readBlock(r *bufio.Reader) ([]byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	if first != '#' {
		if err := r.UnreadByte(); err != nil {
			return nil, err
		}
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimSpace(line)), nil
	}

	digit, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading block header: %w", err)
	}
	if digit < '1' || digit > '9' {
		return nil, fmt.Errorf("invalid block header digit %q", digit)
	}

	lenDigits := make([]byte, digit-'0')
	if _, err := io.ReadFull(r, lenDigits); err != nil {
		return nil, fmt.Errorf("reading block length: %w", err)
	}
	length, err := strconv.Atoi(string(lenDigits))
	if err != nil {
		return nil, fmt.Errorf("invalid block length %q: %w", lenDigits, err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading block payload (%d bytes): %w", length, err)
	}

	// Trailing terminator after the payload, if present
	if b, err := r.ReadByte(); err == nil && b != '\n' {
		r.UnreadByte()
	}
	return payload, nil
}

// DataFormat names the wire encoding of a waveform payload
type DataFormat string

const (
	// FormatASCII is comma-separated decimal values
	FormatASCII DataFormat = "ASCII"
	// FormatByte is one unsigned byte per sample
	FormatByte DataFormat = "BYTE"
	// FormatWord is one little-endian unsigned 16-bit word per sample
	FormatWord DataFormat = "WORD"
)

// ParseDataFormat maps an instrument's format spelling to a DataFormat.
// Instruments answer format queries in long or SCPI short form ("ASCii"
// comes back as "ASC" on some firmwares).
func ParseDataFormat(s string) (DataFormat, bool) {
	switch upper := strings.ToUpper(strings.TrimSpace(s)); {
	case strings.HasPrefix(upper, "ASC"):
		return FormatASCII, true
	case strings.HasPrefix(upper, "BYT"):
		return FormatByte, true
	case strings.HasPrefix(upper, "WOR"):
		return FormatWord, true
	}
	return "", false
}

// DecodeWaveform converts a raw block payload into sample values according
// to the declared format.
func DecodeWaveform(payload []byte, format DataFormat) ([]float64, error) {
	switch format {
	case FormatASCII:
		return decodeASCII(payload)
	case FormatByte:
		samples := make([]float64, len(payload))
		for i, b := range payload {
			samples[i] = float64(b)
		}
		return samples, nil
	case FormatWord:
		if len(payload)%2 != 0 {
			return nil, fmt.Errorf("WORD payload has odd length %d", len(payload))
		}
		samples := make([]float64, len(payload)/2)
		for i := range samples {
			samples[i] = float64(binary.LittleEndian.Uint16(payload[2*i:]))
		}
		return samples, nil
	}
	return nil, fmt.Errorf("unknown waveform format %q", format)
}

func decodeASCII(payload []byte) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(string(payload)), ",")
	samples := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ASCII sample %q: %w", f, err)
		}
		samples = append(samples, v)
	}
	return samples, nil
}
