package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMondayOf(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday maps to itself", date(2024, time.March, 4), date(2024, time.March, 4)},
		{"wednesday maps back", date(2024, time.March, 6), date(2024, time.March, 4)},
		{"sunday maps back six days", date(2024, time.March, 10), date(2024, time.March, 4)},
		{"first of month can spill into previous month", date(2024, time.March, 1), date(2024, time.February, 26)},
		{"year boundary", date(2025, time.January, 1), date(2024, time.December, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MondayOf(tt.in))
		})
	}
}

func TestMondayOf_Idempotent(t *testing.T) {
	// Walk a full year of days; MondayOf(MondayOf(d)) must equal MondayOf(d).
	start := date(2024, time.January, 1)
	for i := 0; i < 366; i++ {
		d := start.AddDate(0, 0, i)
		m := MondayOf(d)
		assert.Equal(t, m, MondayOf(m), "day %s", d.Format(DateLayout))
		assert.Equal(t, time.Monday, m.Weekday())
		assert.False(t, m.After(d))
	}
}

func TestFridayOf(t *testing.T) {
	assert.Equal(t, date(2024, time.March, 8), FridayOf(date(2024, time.March, 4)))
}

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "Marzo_24", MonthLabel(date(2024, time.March, 4)))
	assert.Equal(t, "Enero_25", MonthLabel(date(2025, time.January, 6)))
	assert.Equal(t, "Diciembre_99", MonthLabel(date(1999, time.December, 6)))
	assert.Equal(t, "Febrero_05", MonthLabel(date(2005, time.February, 7)))
}

func TestWeekIndexInMonth(t *testing.T) {
	// March 2024 starts on a Friday, so the Monday of its first week is
	// 2024-02-26 and 2024-03-04 is already index 2.
	assert.Equal(t, 1, WeekIndexInMonth(date(2024, time.February, 26)))
	assert.Equal(t, 2, WeekIndexInMonth(date(2024, time.March, 4)))
	assert.Equal(t, 3, WeekIndexInMonth(date(2024, time.March, 11)))
	assert.Equal(t, 5, WeekIndexInMonth(date(2024, time.March, 25)))

	// April 2024 starts on a Monday: clean indexing.
	assert.Equal(t, 1, WeekIndexInMonth(date(2024, time.April, 1)))
	assert.Equal(t, 3, WeekIndexInMonth(date(2024, time.April, 15)))
}

func TestLabelExcel(t *testing.T) {
	assert.Equal(t, "Marzo_24:Sem 2", LabelExcel(date(2024, time.March, 4)))
	assert.Equal(t, "Abril_24:Sem 1", LabelExcel(date(2024, time.April, 1)))
	assert.Equal(t, "Febrero_24:Sem 5", LabelExcel(date(2024, time.February, 26)))
}

func TestParseDate(t *testing.T) {
	t.Run("plain date", func(t *testing.T) {
		d, err := ParseDate("2024-03-04")
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 4), d)
	})
	t.Run("datetime prefix", func(t *testing.T) {
		d, err := ParseDate("2024-03-04T15:04:05Z")
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 4), d)
	})
	t.Run("surrounding whitespace", func(t *testing.T) {
		d, err := ParseDate("  2024-03-04 ")
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.March, 4), d)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := ParseDate("not-a-date")
		assert.Error(t, err)
	})
}

func TestWindow(t *testing.T) {
	mondays, labels := Window(date(2024, time.March, 6), 4)
	require.Len(t, mondays, 4)
	require.Len(t, labels, 4)

	assert.Equal(t, date(2024, time.March, 4), mondays[0])
	for i := 1; i < len(mondays); i++ {
		assert.Equal(t, 7*24*time.Hour, mondays[i].Sub(mondays[i-1]))
	}
	assert.Equal(t, []string{
		"Marzo_24:Sem 2", "Marzo_24:Sem 3", "Marzo_24:Sem 4", "Marzo_24:Sem 5",
	}, labels)
}

func TestWindow_NonPositiveCount(t *testing.T) {
	mondays, labels := Window(date(2024, time.March, 4), 0)
	assert.Empty(t, mondays)
	assert.Empty(t, labels)

	mondays, labels = Window(date(2024, time.March, 4), -3)
	assert.Empty(t, mondays)
	assert.Empty(t, labels)
}

func TestBuildWindow(t *testing.T) {
	t.Run("valid start", func(t *testing.T) {
		mondays, labels := BuildWindow("2024-03-04", 12)
		require.Len(t, mondays, 12)
		require.Len(t, labels, 12)
		assert.Equal(t, date(2024, time.March, 4), mondays[0])
	})
	t.Run("unparsable start degrades to empty", func(t *testing.T) {
		mondays, labels := BuildWindow("garbage", 12)
		assert.Empty(t, mondays)
		assert.Empty(t, labels)
	})
}

func TestDaterangeMondays(t *testing.T) {
	t.Run("start after end is empty", func(t *testing.T) {
		assert.Empty(t, DaterangeMondays(date(2024, time.March, 11), date(2024, time.March, 4)))
	})
	t.Run("equal bounds yield one monday", func(t *testing.T) {
		got := DaterangeMondays(date(2024, time.March, 4), date(2024, time.March, 4))
		assert.Equal(t, []time.Time{date(2024, time.March, 4)}, got)
	})
	t.Run("three week range", func(t *testing.T) {
		got := DaterangeMondays(date(2024, time.March, 4), date(2024, time.March, 18))
		assert.Equal(t, []time.Time{
			date(2024, time.March, 4),
			date(2024, time.March, 11),
			date(2024, time.March, 18),
		}, got)
	})
	t.Run("non-monday bounds snap to mondays", func(t *testing.T) {
		got := DaterangeMondays(date(2024, time.March, 6), date(2024, time.March, 13))
		assert.Equal(t, []time.Time{
			date(2024, time.March, 4),
			date(2024, time.March, 11),
		}, got)
	})
}

func TestIsMonday(t *testing.T) {
	assert.True(t, IsMonday(date(2024, time.March, 4)))
	assert.False(t, IsMonday(date(2024, time.March, 5)))
}
