package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that reads and writes as text, so "90s" or "1h30m" can be used in
// configuration files. A bare integer is read as a number of seconds.
type Duration time.Duration

// UnmarshalText ...
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: cannot parse %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText ...
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FormatClock formats a duration as HH:MM:SS, rounding partial seconds up. Durations of a day or more
// are prefixed with the number of days.
func FormatClock(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	days, secs := secs/86400, secs%86400
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
