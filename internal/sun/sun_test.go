package sun

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) Table {
	t.Helper()
	raw := make(map[string]Times, len(Months))
	for _, m := range Months {
		raw[m] = Times{Sunrise: 800, Sunset: 1630}
	}
	raw["jun"] = Times{Sunrise: 500, Sunset: 2005}
	table, err := ParseTable(raw)
	require.NoError(t, err)
	return table
}

func at(month time.Month, hour, minute int) time.Time {
	return time.Date(2026, month, 15, hour, minute, 0, 0, time.Local)
}

func TestIsDaylightBoundaries(t *testing.T) {
	table := testTable(t)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"exact sunrise", at(time.June, 5, 0), true},
		{"exact sunset", at(time.June, 20, 5), true},
		{"minute before sunrise", at(time.June, 4, 59), false},
		{"minute after sunset", at(time.June, 20, 6), false},
		{"midday", at(time.June, 12, 0), true},
		{"midnight", at(time.June, 0, 0), false},
		{"january sunrise", at(time.January, 8, 0), true},
		{"january before sunrise", at(time.January, 7, 59), false},
		{"january evening", at(time.January, 17, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, table.IsDaylight(tc.at))
		})
	}
}

func TestHHMMAndMonthKey(t *testing.T) {
	ts := at(time.September, 7, 45)
	require.Equal(t, 745, HHMM(ts))
	require.Equal(t, "sep", MonthKey(ts))
}

func TestWindowNightModeAlwaysOpen(t *testing.T) {
	window := Window{Table: testTable(t), NightMode: true}
	start := at(time.March, 0, 0)
	for i := 0; i < 24*60; i += 15 {
		require.True(t, window.Open(start.Add(time.Duration(i)*time.Minute)))
	}
}

func TestWindowFollowsTable(t *testing.T) {
	window := Window{Table: testTable(t)}
	require.False(t, window.Open(at(time.March, 6, 0)))
	require.True(t, window.Open(at(time.March, 9, 0)))
}

func TestParseTableRejectsDefects(t *testing.T) {
	full := func() map[string]Times {
		raw := make(map[string]Times, len(Months))
		for _, m := range Months {
			raw[m] = Times{Sunrise: 700, Sunset: 1900}
		}
		return raw
	}

	unknown := full()
	unknown["smarch"] = Times{Sunrise: 700, Sunset: 1900}
	_, err := ParseTable(unknown)
	require.ErrorIs(t, err, ErrInvalidTable)

	missing := full()
	delete(missing, "feb")
	_, err = ParseTable(missing)
	require.ErrorIs(t, err, ErrInvalidTable)

	badMinute := full()
	badMinute["may"] = Times{Sunrise: 675, Sunset: 1900}
	_, err = ParseTable(badMinute)
	require.ErrorIs(t, err, ErrInvalidTable)

	inverted := full()
	inverted["oct"] = Times{Sunrise: 1900, Sunset: 700}
	_, err = ParseTable(inverted)
	require.ErrorIs(t, err, ErrInvalidTable)
}

func TestParseTableNormalizesKeys(t *testing.T) {
	raw := make(map[string]Times, len(Months))
	for _, m := range Months {
		raw[" "+strings.ToUpper(m)+" "] = Times{Sunrise: 700, Sunset: 1900}
	}
	table, err := ParseTable(raw)
	require.NoError(t, err)
	require.Contains(t, table, "jan")
	require.Len(t, table, 12)
}
