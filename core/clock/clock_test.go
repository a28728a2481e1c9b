package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowContains(t *testing.T) {
	overnight := Window{Start: TimeOfDay{23, 30}, End: TimeOfDay{5, 30}}
	daytime := Window{Start: TimeOfDay{9, 0}, End: TimeOfDay{17, 0}}

	tests := []struct {
		name   string
		w      Window
		minute int
		want   bool
	}{
		{"overnight at start", overnight, 1410, true},
		{"overnight before start", overnight, 1409, false},
		{"overnight after midnight", overnight, 60, true},
		{"overnight end exclusive", overnight, 330, false},
		{"overnight midday", overnight, 720, false},
		{"daytime inside", daytime, 600, true},
		{"daytime end exclusive", daytime, 1020, false},
		{"daytime before", daytime, 539, false},
		{"negative offset wraps", overnight, 60 - MinutesPerDay, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.w.Contains(tt.minute))
		})
	}
}

func TestWindowContainsPeriodic(t *testing.T) {
	windows := []Window{
		{Start: TimeOfDay{23, 30}, End: TimeOfDay{5, 30}},
		{Start: TimeOfDay{0, 30}, End: TimeOfDay{4, 30}},
		{Start: TimeOfDay{13, 0}, End: TimeOfDay{16, 0}},
		{Start: TimeOfDay{7, 0}, End: TimeOfDay{7, 0}},
	}
	for _, w := range windows {
		for m := 0; m < MinutesPerDay; m += 7 {
			if w.Contains(m) != w.Contains(m+MinutesPerDay) {
				t.Fatalf("window %s not periodic at minute %d", w, m)
			}
		}
	}
}

func TestWindowDuration(t *testing.T) {
	assert.Equal(t, 360, Window{Start: TimeOfDay{23, 30}, End: TimeOfDay{5, 30}}.DurationMinutes())
	assert.Equal(t, 480, Window{Start: TimeOfDay{9, 0}, End: TimeOfDay{17, 0}}.DurationMinutes())
	assert.Equal(t, MinutesPerDay, Window{Start: TimeOfDay{3, 0}, End: TimeOfDay{3, 0}}.DurationMinutes())
	assert.InDelta(t, 6.0, Window{Start: TimeOfDay{23, 30}, End: TimeOfDay{5, 30}}.DurationHours(), 1e-9)
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{7, 5}, tod)
	assert.Equal(t, "07:05", tod.String())

	tod, err = ParseTimeOfDay(" 3:30 ")
	require.NoError(t, err)
	assert.Equal(t, 210, tod.Minutes())

	for _, bad := range []string{"", "7", "24:00", "12:60", "aa:10", "10:-1"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayText(t *testing.T) {
	var tod TimeOfDay
	require.NoError(t, tod.UnmarshalText([]byte("23:30")))
	b, err := tod.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "23:30", string(b))
	assert.Error(t, tod.UnmarshalText([]byte("nope")))
}

func TestNormalizeAndFormat(t *testing.T) {
	assert.Equal(t, 330, Normalize(1770))
	assert.Equal(t, 1380, Normalize(-60))
	assert.Equal(t, "05:30", FormatMinute(1770))
	assert.Equal(t, "22:00", FormatMinute(-120))
	assert.Equal(t, TimeOfDay{5, 30}, FromMinutes(1770))
	assert.True(t, TimeOfDay{}.IsMidnight())
}

func TestMinuteOfDay(t *testing.T) {
	ts := time.Date(2025, 3, 1, 23, 45, 10, 0, time.UTC)
	assert.Equal(t, 1425, MinuteOfDay(ts))
	w := Window{Start: TimeOfDay{23, 30}, End: TimeOfDay{5, 30}}
	assert.True(t, w.ContainsTime(ts))
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("23:30", "05:30")
	require.NoError(t, err)
	assert.True(t, w.Wraps())
	assert.Equal(t, "23:30-05:30", w.String())
	_, err = ParseWindow("25:00", "05:30")
	assert.Error(t, err)
	_, err = ParseWindow("23:00", "x")
	assert.Error(t, err)
}
