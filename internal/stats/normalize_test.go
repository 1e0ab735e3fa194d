package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeKnownDataTypes(t *testing.T) {
	cases := []struct {
		dataType string
		value    float64
		want     float64
	}{
		{"steps", 7500, 50},
		{"steps", 30000, 100},
		{"pushups", 25, 50},
		{"sleep_hours", 7, 50},
		{"sleep_hours", 2, 0},
		{"sleep_hours", 12, 100},
		{"reaction_time_ms", 150, 100},
		{"reaction_time_ms", 500, 0},
		{"reaction_time_ms", 325, 50},
		{"score_0_100", 73, 73},
		{"score_0_100", 140, 100},
		{"score_1_10", 7, 70},
		{"energy_level", 10, 100},
	}

	for _, tc := range cases {
		got := Normalize(tc.dataType, tc.value)
		require.InDelta(t, tc.want, got, 1e-9, "Normalize(%q, %v)", tc.dataType, tc.value)
	}
}

func TestNormalizeUnknownTypePassesThrough(t *testing.T) {
	require.Equal(t, 12345.0, Normalize("heart_rate_variability", 12345))
	require.False(t, Supported("heart_rate_variability"))
	require.True(t, Supported("steps"))
}
