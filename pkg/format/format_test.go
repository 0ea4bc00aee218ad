package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{2 * 1024 * 1024, "2.0 MB"},
		{int64(3.5 * 1024 * 1024 * 1024), "3.5 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Bytes(tt.in), "%d bytes", tt.in)
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "42", Number(42))
}

func TestCronDescription(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"*/30 * * * * *", "Every 30 seconds"},
		{"0 * * * * *", "Every minute"},
		{"0 */15 * * * *", "Every 15 minutes"},
		{"0 0 */6 * * *", "Every 6 hours"},
		{"0 0 * * * *", "Every hour"},
		{"0 30 * * * *", "Every hour at :30"},
		{"0 0 0 * * *", "Daily at midnight"},
		{"0 0 3 * * *", "Daily at 3AM"},
		{"0 30 14 * * *", "Daily at 2:30PM"},
		{"0 0 12 * * *", "Daily at noon"},
		{"0 0 4 * * 1", "Mondays at 4AM"},
		{"0 0 1 1 * *", "1st of each month at 1AM"},
		{"0 0 1 23 * *", "23rd of each month at 1AM"},
		// Five-field and exotic expressions come back unchanged.
		{"0 3 * * *", "0 3 * * *"},
		{"0 0 3 * * 1-5", "0 0 3 * * 1-5"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CronDescription(tt.expr), tt.expr)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()

	assert.Equal(t, "just now", RelativeTime(now.Add(-10*time.Second)))
	assert.Equal(t, "5 minutes ago", RelativeTime(now.Add(-5*time.Minute)))
	assert.Equal(t, "1 minute ago", RelativeTime(now.Add(-90*time.Second)))
	assert.Equal(t, "3 hours ago", RelativeTime(now.Add(-3*time.Hour-time.Minute)))
	assert.Equal(t, "2 days ago", RelativeTime(now.Add(-49*time.Hour)))
	assert.Equal(t, "in 2 hours", RelativeTime(now.Add(2*time.Hour+time.Minute)))
}
