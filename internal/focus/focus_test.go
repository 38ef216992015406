package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/shiftplan/internal/flight"
)

func at(label string, nextDay bool) *flight.Flight {
	return &flight.Flight{TimeLabel: label, IsNextDay: nextDay}
}

func TestInFocus_SameDayWindowEdges(t *testing.T) {
	cfg := ShiftConfig{Mode: ModeDay, WindowStartMinutes: 480, WindowEndMinutes: 1200}

	tests := []struct {
		name  string
		label string
		want  bool
	}{
		{"exactly start", "08:00", true},
		{"exactly end", "20:00", true},
		{"one minute before start", "07:59", false},
		{"one minute after end", "20:01", false},
		{"midday", "12:00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InFocus(at(tt.label, false), cfg, ""))
		})
	}
}

func TestInFocus_OvernightDoesNotWrap(t *testing.T) {
	cfg := ShiftConfig{Mode: ModeNight, WindowStartMinutes: 1200, WindowEndMinutes: 1920}

	assert.True(t, InFocus(at("21:00", false), cfg, ""))
	assert.True(t, InFocus(at("07:00", true), cfg, ""), "next-day 07:00 is minute 1860")
	assert.True(t, InFocus(at("08:00", true), cfg, ""))
	assert.False(t, InFocus(at("08:01", true), cfg, ""))

	// Same label without the next-day flag is minute 420: outside.
	assert.False(t, InFocus(at("07:00", false), cfg, ""))
}

func TestInFocus_Overrides(t *testing.T) {
	cfg := ShiftConfig{Mode: ModeDay, WindowStartMinutes: 480, WindowEndMinutes: 1200}

	assert.True(t, InFocus(at("03:00", false), cfg, ForceFocus))
	assert.False(t, InFocus(at("12:00", false), cfg, ForceHide))
	assert.False(t, InFocus(at("12:00", false), ShiftConfig{Mode: ModeAll}, ForceHide))
}

func TestInFocus_AllDay(t *testing.T) {
	cfg := ShiftConfig{Mode: ModeAll, WindowStartMinutes: 480, WindowEndMinutes: 1200}
	assert.True(t, InFocus(at("03:00", true), cfg, ""))
}

func TestClassify(t *testing.T) {
	cfg := ShiftConfig{Mode: ModeDay, WindowStartMinutes: 480, WindowEndMinutes: 1200}

	assert.Equal(t, InWindow, Classify(at("08:00", false), cfg, "", false))
	assert.Equal(t, Buffer, Classify(at("07:00", false), cfg, "", false))
	assert.Equal(t, Buffer, Classify(at("21:00", false), cfg, "", false))
	assert.Equal(t, Outside, Classify(at("06:59", false), cfg, "", false))
	assert.Equal(t, Outside, Classify(at("21:01", false), cfg, "", false))
	assert.Equal(t, Buffer, Classify(at("03:00", false), cfg, "", true), "completed always included")
	assert.Equal(t, Buffer, Classify(at("03:00", false), cfg, ForceFocus, false), "pinned always included")
	assert.Equal(t, InWindow, Classify(at("03:00", false), ShiftConfig{Mode: ModeAll}, "", false))
	assert.Equal(t, "buffer", Buffer.String())
}

func TestNewShiftConfig_Overnight(t *testing.T) {
	cfg, err := NewShiftConfig(ModeNight, "20:00", "08:00")
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.WindowStartMinutes)
	assert.Equal(t, 1920, cfg.WindowEndMinutes)
	assert.Equal(t, "NIGHT 20:00-08:00", cfg.Label())

	cfg, err = NewShiftConfig(ModeDay, "08:00", "20:00")
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.WindowEndMinutes)

	_, err = NewShiftConfig(ModeDay, "8", "20:00")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Night")
	require.NoError(t, err)
	assert.Equal(t, ModeNight, m)

	_, err = ParseMode("evening")
	assert.Error(t, err)
}
