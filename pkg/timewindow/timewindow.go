// Package timewindow evaluates whether a schedule's active window holds at
// a given instant. The evaluator is pure and side-effect free: same inputs,
// same answer, every time.
package timewindow

import (
	"fmt"
	"time"

	"github.com/cuemby/scheduler/pkg/types"
)

const (
	hhmmss = "15:04:05"
)

// Args bundles the inputs to Evaluate.
type Args struct {
	Start string // "HH:MM:SS", schedule start of day
	End   string // "HH:MM:SS", schedule end of day
	TZ    string // IANA zone name
	Days  []types.Weekday
	Now   time.Time // absolute instant, any location
}

// Evaluate decides whether the active window holds at Now.
//
// Day-of-week membership is checked against the weekday of start_local, not
// of now_local: an overnight window that "belongs to Friday" is still
// active at 01:00 Saturday morning even though now_local's weekday is
// Saturday. This is a deliberate tightening over the more common pattern of
// checking now's weekday with a previous-day fallback; see DESIGN.md.
func Evaluate(a Args) (bool, error) {
	loc, err := time.LoadLocation(a.TZ)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", a.TZ, err)
	}

	startT, err := time.Parse(hhmmss, a.Start)
	if err != nil {
		return false, fmt.Errorf("parse start %q: %w", a.Start, err)
	}
	endT, err := time.Parse(hhmmss, a.End)
	if err != nil {
		return false, fmt.Errorf("parse end %q: %w", a.End, err)
	}
	if len(a.Days) == 0 {
		return false, fmt.Errorf("active days must not be empty")
	}

	nowLocal := a.Now.In(loc)

	startLocal := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		startT.Hour(), startT.Minute(), startT.Second(), 0, loc)
	endLocal := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		endT.Hour(), endT.Minute(), endT.Second(), 0, loc)

	overnight := !endLocal.After(startLocal)
	if overnight {
		endLocal = endLocal.AddDate(0, 0, 1)
	}

	// now_local may fall before today's start_local (e.g. 01:00 during an
	// overnight window that started yesterday). In that case the relevant
	// window instance started yesterday; shift both edges back a day so
	// start_local's weekday is the window's owning day.
	if nowLocal.Before(startLocal) {
		startLocal = startLocal.AddDate(0, 0, -1)
		endLocal = endLocal.AddDate(0, 0, -1)
	}

	if !dayActive(types.FromTimeWeekday(startLocal.Weekday()), a.Days) {
		return false, nil
	}

	return !nowLocal.Before(startLocal) && nowLocal.Before(endLocal), nil
}

func dayActive(day types.Weekday, days []types.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
