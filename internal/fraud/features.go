package fraud

import (
	"hash/fnv"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Feature indices into a FeatureVector. The order is part of the model
// snapshot contract: extraction, training and inference all rely on it.
const (
	FeatureHour = iota
	FeatureDayOfWeek
	FeatureIsWeekend
	FeatureIsNight
	FeatureEmailLength
	FeatureIPNumeric
	FeatureHasUserAgent

	NumFeatures
)

// FeatureNames maps feature indices to their stable names
var FeatureNames = [NumFeatures]string{
	FeatureHour:         "hour",
	FeatureDayOfWeek:    "day_of_week",
	FeatureIsWeekend:    "is_weekend",
	FeatureIsNight:      "is_night",
	FeatureEmailLength:  "email_length",
	FeatureIPNumeric:    "ip_numeric",
	FeatureHasUserAgent: "has_user_agent",
}

// FeatureSchema identifies the extraction rules: email length in characters
// and the IP fallback hash. A snapshot trained under a different schema is
// not loaded.
const FeatureSchema = "v2/runes-fnv1a32-mod1e6"

const ipHashModulus = 1_000_000

// FeatureVector is the fixed-order numeric representation of a login attempt
type FeatureVector [NumFeatures]float64

// Slice returns a copy of the vector as a slice
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by feature name
func (v FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}

// Names returns the feature names in vector order
func Names() []string {
	out := make([]string, NumFeatures)
	copy(out, FeatureNames[:])
	return out
}

// Weekday returns the day index with Monday = 0 and Sunday = 6
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Extract derives the feature vector for a login attempt. It is a pure
// function of its arguments; the timestamp is evaluated in UTC.
func Extract(email, ipAddress, userAgent string, ts time.Time) FeatureVector {
	ts = ts.UTC()
	hour := ts.Hour()
	weekday := Weekday(ts)

	var v FeatureVector
	v[FeatureHour] = float64(hour)
	v[FeatureDayOfWeek] = float64(weekday)
	v[FeatureIsWeekend] = boolFeature(weekday >= 5)
	v[FeatureIsNight] = boolFeature(hour < 6 || hour > 22)
	v[FeatureEmailLength] = float64(utf8.RuneCountInString(email))
	v[FeatureIPNumeric] = IPToNumeric(ipAddress)
	v[FeatureHasUserAgent] = boolFeature(userAgent != "")
	return v
}

// IPToNumeric converts a dotted-quad IPv4 address to its big-endian 32-bit
// value. Anything else (IPv6, garbage, out-of-range octets) falls back to
// FNV-1a of the raw string modulo one million.
func IPToNumeric(ip string) float64 {
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		var value uint32
		ok := true
		for _, part := range parts {
			octet, err := strconv.ParseUint(part, 10, 8)
			if err != nil {
				ok = false
				break
			}
			value = value<<8 | uint32(octet)
		}
		if ok {
			return float64(value)
		}
	}
	return hashFallback(ip)
}

func hashFallback(raw string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(raw))
	return float64(h.Sum32() % ipHashModulus)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
