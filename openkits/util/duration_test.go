package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1h30m ")))
	assert.Equal(t, 90*time.Minute, d.Std())

	require.NoError(t, d.UnmarshalText([]byte("3600")))
	assert.Equal(t, time.Hour, d.Std())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "00:00:01", FormatClock(10*time.Millisecond))
	assert.Equal(t, "00:59:59", FormatClock(3599*time.Second))
	assert.Equal(t, "01:00:00", FormatClock(time.Hour))
	assert.Equal(t, "2d 03:04:05", FormatClock(51*time.Hour+4*time.Minute+5*time.Second))
}
