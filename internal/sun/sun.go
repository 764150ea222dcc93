// Package sun decides whether an instant falls inside the capture window.
package sun

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTable is returned when the sunrise/sunset table cannot be used.
var ErrInvalidTable = errors.New("invalid sun table")

// Months lists the lowercase three-letter keys a table must define.
var Months = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// Times holds sunrise and sunset as four-digit 24-hour integers (800 = 8:00, 2005 = 20:05).
type Times struct {
	Sunrise int `yaml:"sunrise"`
	Sunset  int `yaml:"sunset"`
}

// Table maps a month key to its sunrise/sunset times.
type Table map[string]Times

// ParseTable validates raw table data. Unknown or missing months, malformed
// times and inverted windows are configuration defects.
func ParseTable(raw map[string]Times) (Table, error) {
	table := make(Table, len(Months))
	for key, times := range raw {
		month := strings.ToLower(strings.TrimSpace(key))
		if !knownMonth(month) {
			return nil, fmt.Errorf("%w: unknown month %q", ErrInvalidTable, key)
		}
		if !validHHMM(times.Sunrise) {
			return nil, fmt.Errorf("%w: %s sunrise %d is not a valid hhmm time", ErrInvalidTable, month, times.Sunrise)
		}
		if !validHHMM(times.Sunset) {
			return nil, fmt.Errorf("%w: %s sunset %d is not a valid hhmm time", ErrInvalidTable, month, times.Sunset)
		}
		if times.Sunrise > times.Sunset {
			return nil, fmt.Errorf("%w: %s sunrise %d is after sunset %d", ErrInvalidTable, month, times.Sunrise, times.Sunset)
		}
		table[month] = times
	}
	for _, month := range Months {
		if _, ok := table[month]; !ok {
			return nil, fmt.Errorf("%w: month %q is missing", ErrInvalidTable, month)
		}
	}
	return table, nil
}

// IsDaylight reports whether sunrise <= hhmm(t) <= sunset for t's month.
func (tb Table) IsDaylight(t time.Time) bool {
	times, ok := tb[MonthKey(t)]
	if !ok {
		return false
	}
	hhmm := HHMM(t)
	return times.Sunrise <= hhmm && hhmm <= times.Sunset
}

// HHMM returns the wall-clock time of t as hour*100 + minute.
func HHMM(t time.Time) int {
	return t.Hour()*100 + t.Minute()
}

// MonthKey returns the lowercase three-letter month abbreviation of t.
func MonthKey(t time.Time) string {
	return strings.ToLower(t.Month().String()[:3])
}

// Window is the capture window predicate. Night mode keeps it open permanently.
type Window struct {
	Table     Table
	NightMode bool
}

// Open reports whether capture is permitted at t.
func (w Window) Open(t time.Time) bool {
	if w.NightMode {
		return true
	}
	return w.Table.IsDaylight(t)
}

func knownMonth(key string) bool {
	for _, m := range Months {
		if m == key {
			return true
		}
	}
	return false
}

func validHHMM(v int) bool {
	if v < 0 || v > 2359 {
		return false
	}
	return v%100 < 60
}
