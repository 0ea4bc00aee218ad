// Package bytesize parses and formats human-readable byte sizes.
// Units are binary (1024 base): "5MB" is 5*1024*1024 bytes. Unit names are
// case-insensitive and may be separated from the number by whitespace;
// a bare number means bytes.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
	PB Size = 1024 * TB
)

var units = map[string]Size{
	"b": B, "byte": B, "bytes": B,
	"k": KB, "kb": KB, "kib": KB,
	"m": MB, "mb": MB, "mib": MB,
	"g": GB, "gb": GB, "gib": GB,
	"t": TB, "tb": TB, "tib": TB,
	"p": PB, "pb": PB, "pib": PB,
}

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse parses strings like "5MB", "1.5 GB" or "1024" into a Size.
func Parse(s string) (Size, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", m[1], err)
	}

	mult := B
	if unit := strings.ToLower(m[2]); unit != "" {
		var ok bool
		if mult, ok = units[unit]; !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", m[2])
		}
	}
	return Size(value * float64(mult)), nil
}

// MustParse is Parse that panics on error. For constants only.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a Size with the largest unit that keeps the value >= 1,
// e.g. Format(5 * MB) == "5MB".
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}

	neg := ""
	if s < 0 {
		neg, s = "-", -s
	}

	for _, u := range []struct {
		size Size
		name string
	}{{PB, "PB"}, {TB, "TB"}, {GB, "GB"}, {MB, "MB"}, {KB, "KB"}} {
		if s >= u.size {
			return neg + trimmedFloat(float64(s)/float64(u.size)) + u.name
		}
	}
	return fmt.Sprintf("%s%dB", neg, s)
}

// trimmedFloat formats with up to two decimals, dropping trailing zeros.
func trimmedFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	out := fmt.Sprintf("%.2f", v)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}

// Bytes returns the size as an int64 byte count.
func (s Size) Bytes() int64 {
	return int64(s)
}

func (s Size) String() string {
	return Format(s)
}
