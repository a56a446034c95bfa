package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Duration is a time.Duration written as "860ms" or "30s" in config files and
// environment variables. Bare numbers are read as milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var value any
	err := json5.Unmarshal(data, &value)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
		return nil
	}
	return fmt.Errorf("duration must be a string or a number of milliseconds, got %s", data)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
