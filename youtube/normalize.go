package youtube

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// normalizeISODate converts an ISO-8601 date or datetime (with or without
// zone) to YYYYMMDD. Unparseable input falls back to plain separator
// stripping when that leaves exactly eight digits, otherwise empty.
func normalizeISODate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("20060102")
		}
	}

	stripped := strings.NewReplacer("-", "", "/", "").Replace(value)
	if len(stripped) == 8 && isDigits(stripped) {
		return stripped
	}
	return ""
}

// normalizeSimpleDate accepts YYYY-MM-DD or YYYY/MM/DD strings (and already
// correct 8-digit dates) and returns YYYYMMDD, zero-padding short fields.
// Anything else normalizes to empty, never a guess.
func normalizeSimpleDate(value string) string {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return ""
	}
	clean = strings.ReplaceAll(clean, "/", "-")

	parts := strings.Split(clean, "-")
	if len(parts) == 3 && isDigits(parts[0]) && isDigits(parts[1]) && isDigits(parts[2]) {
		year := leftPad(parts[0], 4)
		month := leftPad(parts[1], 2)
		day := leftPad(parts[2], 2)
		return year + month + day
	}

	if len(clean) == 8 && isDigits(clean) {
		return clean
	}
	return ""
}

// epochToDate converts epoch seconds to a YYYYMMDD string in UTC. Zero and
// negative timestamps normalize to empty.
func epochToDate(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("20060102")
}

// normalizeDate dispatches over the date representations the sources use:
// epoch seconds, ISO-8601 datetimes, simple dashed/slashed dates, and
// already-normalized 8-digit strings.
func normalizeDate(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if d := normalizeSimpleDate(v); d != "" {
			return d
		}
		return normalizeISODate(v)
	case int:
		return epochToDate(int64(v))
	case int64:
		return epochToDate(v)
	case float64:
		return epochToDate(int64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return epochToDate(n)
		}
		return ""
	default:
		return ""
	}
}

// coerceSeconds converts a raw JSON duration value (number, numeric string,
// or absent) into an integer second count. Invalid input yields nil, never
// an error.
func coerceSeconds(raw json.RawMessage) *int64 {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		trimmed = strings.TrimSpace(s)
	}

	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		n := int64(f)
		return &n
	}
	return nil
}

// parseInt64 converts a numeric string to *int64, nil when unparseable.
func parseInt64(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func int64Ptr(n int64) *int64 {
	return &n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// secondsString renders a duration pointer for the duration_string field.
func secondsString(d *int64) string {
	if d == nil {
		return ""
	}
	return strconv.FormatInt(*d, 10)
}
