package ir

import (
	"strconv"
	"time"
)

// timeLayouts are the textual timestamp shapes seen in exports.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time interprets v as a timestamp.
// Strings are parsed against common export layouts (naive times are UTC);
// integers and decimals are unix seconds, or unix milliseconds when the
// value is too large to be seconds.
func Time(v IRValue) (time.Time, bool) {
	switch val := v.(type) {
	case IRString:
		return ParseTime(string(val))
	case IRInt:
		return unixTime(float64(val)), true
	case IRDecimal:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return time.Time{}, false
		}
		return unixTime(f), true
	default:
		return time.Time{}, false
	}
}

// ParseTime parses s with the first matching export layout.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Seconds past 1e11 would be year 5138; treat them as milliseconds.
const millisThreshold = 1e11

func unixTime(f float64) time.Time {
	if f > millisThreshold || f < -millisThreshold {
		f /= 1000
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
