package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTimeEquivalentForms(t *testing.T) {
	// Equivalent clock times in every accepted form parse to the same value.
	cases := map[string]int{
		"05:30":    330,
		"5:30 AM":  330,
		"5:30AM":   330,
		"0530":     330,
		"00:00":    0,
		"12:00 AM": 0,
		"12:00 PM": 720,
		"17:45":    1065,
		"5:45 PM":  1065,
		"1745":     1065,
		"23:59":    1439,
		"11:59 pm": 1439,
	}
	for input, want := range cases {
		got, err := ParseClockTime(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestParseClockTimeRejectsMalformed(t *testing.T) {
	bad := []string{
		"", "noon", "25:00", "12:60", "13:00 PM", "0:30 AM",
		"530", "12345", "12:3", "12-30", "7:5 PM",
	}
	for _, input := range bad {
		_, err := ParseClockTime(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestMaskForWeekday(t *testing.T) {
	assert.Equal(t, Monday, MaskForWeekday(time.Monday))
	assert.Equal(t, Friday, MaskForWeekday(time.Friday))
	assert.Equal(t, Saturday, MaskForWeekday(time.Saturday))
	assert.Equal(t, Sunday, MaskForWeekday(time.Sunday))

	assert.True(t, Weekdays.Has(MaskForWeekday(time.Wednesday)))
	assert.False(t, Weekdays.Has(MaskForWeekday(time.Sunday)))
}

func TestWindowCoversMidnightWrap(t *testing.T) {
	// 22:00-06:00 Mon-Fri.
	w := Window{Days: Weekdays, Start: 1320, End: 360}

	assert.True(t, w.Covers(23*60))  // 23:00
	assert.True(t, w.Covers(5*60))   // 05:00
	assert.True(t, w.Covers(1320))   // boundary start
	assert.True(t, w.Covers(360))    // boundary end
	assert.False(t, w.Covers(12*60)) // noon
	assert.False(t, w.Covers(700))
}

func TestWindowCoversSameDay(t *testing.T) {
	w := Window{Days: EveryDay, Start: 360, End: 1200} // 06:00-20:00

	assert.True(t, w.Covers(360))
	assert.True(t, w.Covers(1200))
	assert.True(t, w.Covers(480))
	assert.False(t, w.Covers(300))
	assert.False(t, w.Covers(1260))
}
