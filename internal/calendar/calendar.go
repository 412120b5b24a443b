// Package calendar maps calendar dates onto the weekly reporting grid.
//
// The grid is anchored to Mondays: every allocation week is identified by its
// Monday and labelled "Mes_YY:Sem N". The week index follows the original
// planning sheets: floor division from the Monday of the week containing the
// first day of the month, which means the index near month boundaries does not
// match "week of month" conventions from calendar libraries. That behavior is
// load-bearing for downstream labels and must not be normalized.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical date format used across storage and transport.
const DateLayout = "2006-01-02"

// monthNames is the fixed Spanish month table, indexed by month number - 1.
var monthNames = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MondayOf returns the Monday of the ISO week containing d, normalized to
// midnight UTC. Applying it twice yields the same result.
func MondayOf(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday
	}
	return day.AddDate(0, 0, -offset)
}

// FridayOf returns the Friday closing the week bucket that starts at monday.
func FridayOf(monday time.Time) time.Time {
	return monday.AddDate(0, 0, 4)
}

// MonthLabel renders d's month as "Mes_YY".
func MonthLabel(d time.Time) string {
	return fmt.Sprintf("%s_%02d", monthNames[int(d.Month())-1], d.Year()%100)
}

// WeekIndexInMonth returns the 1-based ordinal of weekMonday within its
// calendar month, computed as floor((weekMonday - MondayOf(first of month)) / 7) + 1.
func WeekIndexInMonth(weekMonday time.Time) int {
	firstOfMonth := time.Date(weekMonday.Year(), weekMonday.Month(), 1, 0, 0, 0, 0, time.UTC)
	firstMonday := MondayOf(firstOfMonth)
	days := int(weekMonday.Sub(firstMonday).Hours() / 24)
	return days/7 + 1
}

// WeekLabel renders the "Sem N" half of a week label.
func WeekLabel(weekMonday time.Time) string {
	return "Sem " + strconv.Itoa(WeekIndexInMonth(weekMonday))
}

// LabelExcel renders the full week label, "Mes_YY:Sem N".
func LabelExcel(weekMonday time.Time) string {
	return MonthLabel(weekMonday) + ":" + WeekLabel(weekMonday)
}

// ParseDate converts a caller-supplied date string into a UTC date. It accepts
// plain "YYYY-MM-DD" values and ISO datetime strings, in which case only the
// date part is kept.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// IsMonday reports whether d falls on a Monday.
func IsMonday(d time.Time) bool {
	return d.Weekday() == time.Monday
}

// Window returns weeks consecutive Mondays starting at MondayOf(start),
// paired with their labels. A non-positive count yields empty slices.
func Window(start time.Time, weeks int) ([]time.Time, []string) {
	if weeks <= 0 {
		return nil, nil
	}
	mondays := make([]time.Time, 0, weeks)
	labels := make([]string, 0, weeks)
	monday := MondayOf(start)
	for i := 0; i < weeks; i++ {
		wm := monday.AddDate(0, 0, 7*i)
		mondays = append(mondays, wm)
		labels = append(labels, LabelExcel(wm))
	}
	return mondays, labels
}

// BuildWindow parses start and builds the reporting window. Report endpoints
// must stay non-fatal, so an unparsable start degrades to an empty window
// instead of returning an error.
func BuildWindow(start string, weeks int) ([]time.Time, []string) {
	d, err := ParseDate(start)
	if err != nil {
		return nil, nil
	}
	return Window(d, weeks)
}

// DaterangeMondays lists every Monday from MondayOf(start) to MondayOf(end)
// inclusive, one week apart. Empty when start is after end.
func DaterangeMondays(start, end time.Time) []time.Time {
	if start.After(end) {
		return nil
	}
	var mondays []time.Time
	for cur := MondayOf(start); !cur.After(end); cur = cur.AddDate(0, 0, 7) {
		mondays = append(mondays, cur)
	}
	return mondays
}
