// Package delivery fills in a default delivery date and time when the shopper has
// not picked one.
package delivery

import (
	"fmt"
	"strings"
	"time"
)

// Layouts of the two form fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// LastHour is the latest default delivery hour; defaults never roll into tomorrow.
const LastHour = 23

// Selection is the shopper's delivery choice as entered in the form.
// Empty fields mean "not chosen".
type Selection struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Complete reports whether both fields are filled.
func (s Selection) Complete() bool {
	return strings.TrimSpace(s.Date) != "" && strings.TrimSpace(s.Time) != ""
}

// EnsureDefaults returns sel with empty fields defaulted relative to now:
// the date becomes now's calendar date and the time the next whole hour, clamped
// to 23:00. Filled fields are left untouched, so repeated calls are no-ops.
func EnsureDefaults(sel Selection, now time.Time) Selection {
	if strings.TrimSpace(sel.Date) == "" {
		sel.Date = now.Format(DateLayout)
	}
	if strings.TrimSpace(sel.Time) == "" {
		sel.Time = fmt.Sprintf("%02d:00", NextHour(now))
	}
	return sel
}

// NextHour returns the hour after now's hour, never beyond LastHour.
func NextHour(now time.Time) int {
	return min(now.Hour()+1, LastHour)
}

// Validate checks that filled fields parse in their layouts.
func (s Selection) Validate() error {
	if s.Date != "" {
		if _, err := time.Parse(DateLayout, s.Date); err != nil {
			return fmt.Errorf("delivery date %q: want YYYY-MM-DD", s.Date)
		}
	}
	if s.Time != "" {
		if _, err := time.Parse(TimeLayout, s.Time); err != nil {
			return fmt.Errorf("delivery time %q: want HH:MM", s.Time)
		}
	}
	return nil
}
