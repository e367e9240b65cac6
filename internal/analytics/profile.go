package analytics

import (
	"fmt"
	"time"

	"github.com/foxseedlab/bonfire/internal/repository"
)

type UserProfile struct {
	Found             bool    `json:"found"`
	UserID            string  `json:"user_id,omitempty"`
	Username          string  `json:"username,omitempty"`
	TotalMinutes      int64   `json:"total_minutes"`
	EntryCount        int     `json:"entry_count"`
	AvgMinutes        int64   `json:"avg_minutes"`
	ActiveDays        int     `json:"active_days"`
	AvgEntriesPerDay  float64 `json:"avg_entries"`
	TopWeekday        string  `json:"top_day,omitempty"`
	TopWeekdayMinutes int64   `json:"top_day_minutes"`
	TopHour           int     `json:"top_hour"`
	TopHourRange      string  `json:"top_hour_range,omitempty"`
	TopHourMinutes    int64   `json:"hour_minutes"`
	// WeekdaySeconds is indexed by time.Weekday, HourSeconds by hour of day.
	WeekdaySeconds [7]int64  `json:"weekday_seconds"`
	HourSeconds    [24]int64 `json:"hour_seconds"`
}

// Profile describes one user's activity. Records are expected to belong to a
// single user; the username is taken from the first record.
func Profile(records []repository.SessionRecord, loc *time.Location) UserProfile {
	if len(records) == 0 {
		return UserProfile{}
	}
	loc = inLocation(loc)
	p := UserProfile{
		Found:      true,
		UserID:     records[0].UserID,
		Username:   records[0].Username,
		EntryCount: len(records),
	}

	var (
		totalSeconds int64
		dayOrder     []time.Weekday
		hourOrder    []int
		seenDay      [7]bool
		seenHour     [24]bool
		activeDays   = make(map[string]struct{})
	)
	for _, r := range records {
		start := r.StartTime.In(loc)
		day, hour := start.Weekday(), start.Hour()
		if !seenDay[day] {
			seenDay[day] = true
			dayOrder = append(dayOrder, day)
		}
		if !seenHour[hour] {
			seenHour[hour] = true
			hourOrder = append(hourOrder, hour)
		}
		p.WeekdaySeconds[day] += r.DurationSec
		p.HourSeconds[hour] += r.DurationSec
		activeDays[start.Format(time.DateOnly)] = struct{}{}
		totalSeconds += r.DurationSec
	}

	p.TotalMinutes = totalSeconds / 60
	p.AvgMinutes = p.TotalMinutes / int64(p.EntryCount)
	p.ActiveDays = len(activeDays)
	p.AvgEntriesPerDay = round2(float64(p.EntryCount) / float64(p.ActiveDays))

	// Ties go to the bucket seen first.
	topDay := dayOrder[0]
	for _, d := range dayOrder[1:] {
		if p.WeekdaySeconds[d] > p.WeekdaySeconds[topDay] {
			topDay = d
		}
	}
	topHour := hourOrder[0]
	for _, h := range hourOrder[1:] {
		if p.HourSeconds[h] > p.HourSeconds[topHour] {
			topHour = h
		}
	}
	p.TopWeekday = topDay.String()
	p.TopWeekdayMinutes = p.WeekdaySeconds[topDay] / 60
	p.TopHour = topHour
	p.TopHourRange = HourRange(topHour)
	p.TopHourMinutes = p.HourSeconds[topHour] / 60
	return p
}

// HourRange labels an hour-of-day bucket, e.g. "09:00 ~ 10:00".
func HourRange(hour int) string {
	return fmt.Sprintf("%02d:00 ~ %02d:00", hour, hour+1)
}
