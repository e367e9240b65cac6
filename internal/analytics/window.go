// Package analytics computes activity statistics from session records. Every
// function is pure and returns a defined empty result for empty input.
package analytics

import (
	"math"
	"time"

	"github.com/foxseedlab/bonfire/internal/repository"
)

// AllTimeStart is the start of the "all" window.
var AllTimeStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type Window struct {
	Label string
	// Days is the trailing window length; 0 means all time.
	Days int
}

var StandardWindows = []Window{
	{Label: "1d", Days: 1},
	{Label: "7d", Days: 7},
	{Label: "30d", Days: 30},
	{Label: "all", Days: 0},
}

func WindowOfDays(days int) Window {
	if days <= 0 {
		return Window{Label: "all"}
	}
	for _, w := range StandardWindows {
		if w.Days == days {
			return w
		}
	}
	return Window{Label: "custom", Days: days}
}

func (w Window) Start(now time.Time) time.Time {
	if w.Days <= 0 {
		return AllTimeStart
	}
	return now.Add(-time.Duration(w.Days) * 24 * time.Hour)
}

// FilterSince keeps records that started at or after since.
func FilterSince(records []repository.SessionRecord, since time.Time) []repository.SessionRecord {
	out := make([]repository.SessionRecord, 0, len(records))
	for _, r := range records {
		if !r.StartTime.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func inLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
