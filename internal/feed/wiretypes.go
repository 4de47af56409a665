package feed

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Lenient scalar decoders. A value of the wrong shape decodes to zero instead of
// failing the whole message; the envelope and identifiers are validated separately.

// rawScalar returns the textual form of a JSON number or string, or "" for anything else.
func rawScalar(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if b[0] == '-' || (b[0] >= '0' && b[0] <= '9') {
		return string(b)
	}
	return ""
}

func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// flexUint decodes non-negative integers, truncating fractional values.
type flexUint uint64

func (u *flexUint) UnmarshalJSON(b []byte) error {
	*u = 0
	s := rawScalar(b)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		*u = flexUint(v)
		return nil
	}
	if f, ok := parseFinite(s); ok && f >= 0 && f < math.MaxUint64 {
		*u = flexUint(f)
	}
	return nil
}

// flexFloat decodes finite floats.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = 0
	if v, ok := parseFinite(rawScalar(b)); ok {
		*f = flexFloat(v)
	}
	return nil
}

// secondsCutoff separates second-resolution timestamps from millisecond ones.
const secondsCutoff = 100_000_000_000

// flexTime decodes a Unix timestamp in ms. Accepts ms, seconds (scaled up) and RFC 3339 strings.
type flexTime int64

func (t *flexTime) UnmarshalJSON(b []byte) error {
	*t = 0
	s := rawScalar(b)
	if s == "" {
		return nil
	}

	var ms int64
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		ms = v
	} else if f, ok := parseFinite(s); ok && math.Abs(f) < math.MaxInt64 {
		ms = int64(f)
	} else if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ms = parsed.UnixMilli()
	}
	if ms <= 0 {
		return nil
	}
	if ms < secondsCutoff {
		ms *= 1000
	}
	*t = flexTime(ms)
	return nil
}

// flexBool decodes booleans, "true"/"false" strings and numbers (non-zero is true).
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	*v = false
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("true")):
		*v = true
		return nil
	case bytes.Equal(b, []byte("false")):
		return nil
	}
	s := rawScalar(b)
	if parsed, err := strconv.ParseBool(s); err == nil {
		*v = flexBool(parsed)
	} else if f, ok := parseFinite(s); ok {
		*v = f != 0
	}
	return nil
}

// flexStrings decodes an array of strings, skipping non-string items. Other shapes decode to nil.
type flexStrings []string

func (s *flexStrings) UnmarshalJSON(b []byte) error {
	*s = nil
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var str string
		if json.Unmarshal(item, &str) == nil {
			out = append(out, str)
		}
	}
	*s = out
	return nil
}
