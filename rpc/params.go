package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"memagent/process"
)

// Decode unmarshals params into dst. Absent or null params decode as an empty object.
func Decode(params json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return Validationf("malformed params: %v", err)
	}
	return nil
}

// Require dereferences a required parameter, naming it when absent.
func Require[T any](name string, v *T) (T, error) {
	if v == nil {
		var zero T
		return zero, Validationf("missing required parameter %q", name)
	}
	return *v, nil
}

// RequireString is Require that also rejects the empty string.
func RequireString(name string, v *string) (string, error) {
	if v == nil || *v == "" {
		return "", Validationf("missing required parameter %q", name)
	}
	return *v, nil
}

// RequireAddress parses a required hex address parameter.
func RequireAddress(name string, v *string) (process.ProcessMemoryAddress, error) {
	s, err := RequireString(name, v)
	if err != nil {
		return 0, err
	}
	addr, err := process.ParseAddress(s)
	if err != nil {
		return 0, Validationf("parameter %q: %v", name, err)
	}
	return addr, nil
}

// OrDefault returns *v, or def when the parameter was omitted.
func OrDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// Interval converts a millisecond parameter to a duration no shorter than
// floor. Values too large for a time.Duration are rejected.
func Interval(name string, ms int64, floor time.Duration) (time.Duration, error) {
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, Validationf("parameter %q: %d ms is out of range", name, ms)
	}
	return max(time.Duration(ms)*time.Millisecond, floor), nil
}

// Text is a parameter sent either as a JSON string or as a bare number or
// boolean; it always holds the textual form.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*t = "1"
		} else {
			*t = "0"
		}
		return nil
	}
	return fmt.Errorf("expected a string or number, got %s", data)
}

// RequireText dereferences a required Text parameter.
func RequireText(name string, v *Text) (string, error) {
	if v == nil {
		return "", Validationf("missing required parameter %q", name)
	}
	return string(*v), nil
}
