package analytics

import (
	"sort"
	"time"

	"github.com/foxseedlab/bonfire/internal/repository"
)

const heatmapDays = 7

type HeatmapCell struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type HeatmapDay struct {
	Date  string          `json:"date"`
	Hours [24]HeatmapCell `json:"hours"`
}

type HeatmapResult struct {
	Days []HeatmapDay `json:"days"`
}

// HeatmapSince is the earliest start time Heatmap can place on the grid.
func HeatmapSince(now time.Time, loc *time.Location) time.Time {
	local := now.In(inLocation(loc))
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return day.AddDate(0, 0, -(heatmapDays - 1))
}

// Heatmap counts distinct participants per hour over the seven calendar days
// ending on now's date, oldest day first. A participant is counted under
// their nickname, or username when they have none.
func Heatmap(records []repository.SessionRecord, now time.Time, loc *time.Location) HeatmapResult {
	loc = inLocation(loc)
	local := now.In(loc)

	res := HeatmapResult{Days: make([]HeatmapDay, heatmapDays)}
	index := make(map[string]int, heatmapDays)
	for i := 0; i < heatmapDays; i++ {
		date := local.AddDate(0, 0, i-(heatmapDays-1)).Format(time.DateOnly)
		res.Days[i].Date = date
		index[date] = i
	}

	type cellKey struct{ day, hour int }
	seen := make(map[cellKey]map[string]struct{})
	for _, r := range records {
		start := r.StartTime.In(loc)
		i, ok := index[start.Format(time.DateOnly)]
		if !ok {
			continue
		}
		hour := start.Hour()
		key := cellKey{day: i, hour: hour}
		if seen[key] == nil {
			seen[key] = make(map[string]struct{})
		}
		name := r.DisplayName()
		if _, dup := seen[key][name]; dup {
			continue
		}
		seen[key][name] = struct{}{}
		cell := &res.Days[i].Hours[hour]
		cell.Users = append(cell.Users, name)
		cell.Count = len(cell.Users)
	}
	for i := range res.Days {
		for h := range res.Days[i].Hours {
			sort.Strings(res.Days[i].Hours[h].Users)
		}
	}
	return res
}

// Cell looks up a grid cell by date (YYYY-MM-DD) and hour.
func (h HeatmapResult) Cell(date string, hour int) (HeatmapCell, bool) {
	if hour < 0 || hour > 23 {
		return HeatmapCell{}, false
	}
	for _, d := range h.Days {
		if d.Date == date {
			return d.Hours[hour], true
		}
	}
	return HeatmapCell{}, false
}
