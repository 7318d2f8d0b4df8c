package jsonx

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Thin wrapper so checkpoint and report paths can swap JSON implementations in one place.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
)

type RawMessage = json.RawMessage

// Stringify renders v as text for size estimation. Strings and byte slices
// pass through; everything else is JSON encoded, falling back to fmt when the
// value cannot be encoded.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// MarshalIndentLine marshals v as indented JSON with a trailing newline.
func MarshalIndentLine(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
