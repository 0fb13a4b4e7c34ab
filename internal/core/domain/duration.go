package domain

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so configuration values read and write as
// "30s" or "1h" rather than a nanosecond count. It round-trips through TOML
// and JSON via the text interfaces.
type Duration time.Duration

// String returns the time.ParseDuration form, such as "1h30m".
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText encodes the duration in its String form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses text with time.ParseDuration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: invalid duration %q", ErrInvalidConfiguration, string(text))
	}
	*d = Duration(parsed)
	return nil
}
