package entryfs

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Content decodes the result back into the bytes that were read
func (r ReadResult) Content() ([]byte, error) {
	switch r.Mode {
	case ReadText:
		return []byte(r.Text), nil
	case ReadArrayBuffer:
		return r.Bytes, nil
	case ReadDataURL:
		return DecodeDataURL(r.Text)
	case ReadBinaryString:
		return DecodeBinaryString(r.Text)
	default:
		return nil, fmt.Errorf("unknown read mode: %d", r.Mode)
	}
}

// DecodeDataURL returns the payload of a "data:" URL. Both base64 and
// plain payloads are accepted.
func DecodeDataURL(u string) ([]byte, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URL: %.32q", u)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data URL missing payload separator")
	}
	if strings.HasSuffix(header, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	return []byte(payload), nil
}

// DecodeBinaryString converts a binary string (one rune per byte) to bytes
func DecodeBinaryString(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("rune %U at offset %d is not a byte", r, i)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
