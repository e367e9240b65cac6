package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/foxseedlab/bonfire/internal/repository"
)

type UserSummary struct {
	UserID           string  `json:"user_id"`
	Username         string  `json:"username"`
	TotalMinutes     int64   `json:"total_minutes"`
	EntryCount       int     `json:"entry_count"`
	ActiveDays       int     `json:"active_days"`
	AvgMinutes       int64   `json:"avg_minutes"`
	AvgEntriesPerDay float64 `json:"avg_entries"`
}

type Summary struct {
	Empty             bool          `json:"empty"`
	Users             []UserSummary `json:"users"`
	TotalUsers        int           `json:"total_users"`
	TotalMinutes      int64         `json:"total_minutes"`
	AvgMinutesPerUser int64         `json:"avg_minutes_per_user"`
	MaxUser           UserSummary   `json:"max_user"`
	MinUser           UserSummary   `json:"min_user"`
	StdDev            int64         `json:"std_dev"`
}

type userAccumulator struct {
	userID     string
	username   string
	seconds    int64
	entries    int
	activeDays map[string]struct{}
}

// accumulate groups records per user in first-seen order.
func accumulate(records []repository.SessionRecord, loc *time.Location) []*userAccumulator {
	loc = inLocation(loc)
	var order []*userAccumulator
	byUser := make(map[string]*userAccumulator)
	for _, r := range records {
		acc, ok := byUser[r.UserID]
		if !ok {
			acc = &userAccumulator{userID: r.UserID, activeDays: make(map[string]struct{})}
			byUser[r.UserID] = acc
			order = append(order, acc)
		}
		acc.username = r.Username
		acc.seconds += r.DurationSec
		acc.entries++
		acc.activeDays[r.StartTime.In(loc).Format(time.DateOnly)] = struct{}{}
	}
	return order
}

func Summarize(records []repository.SessionRecord, loc *time.Location) Summary {
	users := accumulate(records, loc)
	if len(users) == 0 {
		return Summary{Empty: true}
	}

	var (
		s            = Summary{TotalUsers: len(users)}
		totalSeconds int64
		minutes      = make([]float64, 0, len(users))
	)
	for i, acc := range users {
		row := UserSummary{
			UserID:       acc.userID,
			Username:     acc.username,
			TotalMinutes: acc.seconds / 60,
			EntryCount:   acc.entries,
			ActiveDays:   len(acc.activeDays),
		}
		row.AvgMinutes = row.TotalMinutes / int64(row.EntryCount)
		if row.ActiveDays > 0 {
			row.AvgEntriesPerDay = round2(float64(row.EntryCount) / float64(row.ActiveDays))
		}
		if i == 0 || row.TotalMinutes > s.MaxUser.TotalMinutes {
			s.MaxUser = row
		}
		if i == 0 || row.TotalMinutes < s.MinUser.TotalMinutes {
			s.MinUser = row
		}
		s.Users = append(s.Users, row)
		totalSeconds += acc.seconds
		minutes = append(minutes, float64(row.TotalMinutes))
	}
	s.TotalMinutes = totalSeconds / 60
	s.AvgMinutesPerUser = s.TotalMinutes / int64(s.TotalUsers)
	s.StdDev = int64(populationStdDev(minutes))

	sort.SliceStable(s.Users, func(i, j int) bool {
		return s.Users[i].TotalMinutes > s.Users[j].TotalMinutes
	})
	return s
}

func populationStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}
