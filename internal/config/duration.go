package config

import (
	"encoding/json"
	"time"

	"github.com/jmylchreest/roomrec/pkg/duration"
)

// Duration is a config value accepting extended duration syntax: standard Go
// durations plus days ("30d") and weeks ("2w"), in any combination
// ("1w2d12h"). It implements encoding.TextUnmarshaler so Viper and YAML
// decode it directly.
type Duration time.Duration

// ParseDuration parses the extended duration syntax.
func ParseDuration(s string) (Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON accepts either a duration string or a nanosecond count.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var ns int64
		if err := json.Unmarshal(data, &ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON renders the human-readable form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String renders with the largest fitting units, omitting zero components.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}
