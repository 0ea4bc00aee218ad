package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Size
		wantErr bool
	}{
		{"bare number is bytes", "1024", 1024, false},
		{"bytes with unit", "100 bytes", 100, false},
		{"kilobytes", "5KB", 5 * KB, false},
		{"kilobytes short", "5K", 5 * KB, false},
		{"explicit binary unit", "5KiB", 5 * KB, false},
		{"megabytes", "10MB", 10 * MB, false},
		{"gigabytes with space", "2 GB", 2 * GB, false},
		{"terabytes", "1TB", TB, false},
		{"petabytes", "1PB", PB, false},
		{"float value", "1.5MB", Size(1.5 * float64(MB)), false},
		{"lowercase", "5mb", 5 * MB, false},
		{"mixed case", "5Mb", 5 * MB, false},
		{"surrounding whitespace", "  5MB  ", 5 * MB, false},
		{"zero", "0", 0, false},
		{"zero with unit", "0MB", 0, false},

		{"empty", "", 0, true},
		{"not a size", "invalid", 0, true},
		{"unknown unit", "5XB", 0, true},
		{"negative rejected", "-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, size)
		})
	}
}

func TestParseEquivalentSpellings(t *testing.T) {
	groups := [][]string{
		{"1KB", "1 KB", "1kb", "1kib", "1024", "1024B"},
		{"1MB", "1 MB", "1mb", "1mib", "1M"},
		{"1GB", "1 GB", "1gb", "1gib", "1G"},
	}

	for _, group := range groups {
		want, err := Parse(group[0])
		require.NoError(t, err)
		for _, s := range group[1:] {
			size, err := Parse(s)
			require.NoError(t, err, "parsing %q", s)
			assert.Equal(t, want, size, "%q should equal %q", s, group[0])
		}
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 5*MB, MustParse("5MB"))
	assert.Panics(t, func() { MustParse("invalid") })
}

func TestFormat(t *testing.T) {
	tests := []struct {
		size Size
		want string
	}{
		{0, "0B"},
		{500, "500B"},
		{1023, "1023B"},
		{KB, "1KB"},
		{1025, "1KB"},
		{10 * MB, "10MB"},
		{2 * GB, "2GB"},
		{TB, "1TB"},
		{PB, "1PB"},
		{Size(1.5 * float64(MB)), "1.5MB"},
		{Size(2.25 * float64(GB)), "2.25GB"},
		{-5 * MB, "-5MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.size), "Format(%d)", int64(tt.size))
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, s := range []Size{0, B, KB, MB, GB, TB, 5 * MB, 10 * GB} {
		parsed, err := Parse(Format(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestSizeMethods(t *testing.T) {
	size := 5 * MB
	assert.Equal(t, "5MB", size.String())
	assert.Equal(t, int64(5242880), size.Bytes())
}
