package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/foxseedlab/bonfire/internal/repository"
)

// ConcentrationRatio is the share of the total, in percent rounded to two
// decimals, held by the k largest totals. It never decreases as k grows.
func ConcentrationRatio(totals []int64, k int) float64 {
	if len(totals) == 0 || k <= 0 {
		return 0
	}
	sorted := append([]int64(nil), totals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	var all, top int64
	for i, v := range sorted {
		all += v
		if i < k {
			top += v
		}
	}
	if all == 0 {
		return 0
	}
	return round2(float64(top) / float64(all) * 100)
}

// TopCohortSize is the size of the leading 20% of n users, at least one.
func TopCohortSize(n int) int {
	return max(1, int(math.Ceil(float64(n)*0.2)))
}

func userTotals(records []repository.SessionRecord) []int64 {
	var order []string
	byUser := make(map[string]int64)
	for _, r := range records {
		if _, ok := byUser[r.UserID]; !ok {
			order = append(order, r.UserID)
		}
		byUser[r.UserID] += r.DurationSec
	}
	totals := make([]int64, 0, len(order))
	for _, id := range order {
		totals = append(totals, byUser[id])
	}
	return totals
}

type HourShare struct {
	Hour    int     `json:"hour"`
	Percent float64 `json:"percent"`
}

type FocusResult struct {
	Empty      bool        `json:"empty"`
	Hours      []HourShare `json:"hours"`
	TopN       int         `json:"top_n"`
	TopRatio   float64     `json:"top_ratio"`
	TotalUsers int         `json:"total_users"`
}

// Focus spreads total duration over hour-of-day buckets by session start.
func Focus(records []repository.SessionRecord, loc *time.Location) FocusResult {
	if len(records) == 0 {
		return FocusResult{Empty: true}
	}
	loc = inLocation(loc)
	var (
		hours [24]int64
		total int64
	)
	for _, r := range records {
		hours[r.StartTime.In(loc).Hour()] += r.DurationSec
		total += r.DurationSec
	}
	res := FocusResult{}
	for h, d := range hours {
		if d == 0 || total == 0 {
			continue
		}
		res.Hours = append(res.Hours, HourShare{Hour: h, Percent: round2(float64(d) / float64(total) * 100)})
	}
	totals := userTotals(records)
	res.TotalUsers = len(totals)
	res.TopN = TopCohortSize(len(totals))
	res.TopRatio = ConcentrationRatio(totals, res.TopN)
	return res
}

type ParetoResult struct {
	NoData     bool    `json:"no_data"`
	Top2       float64 `json:"top2"`
	Top5       float64 `json:"top5"`
	Top20Pct   float64 `json:"top20pct"`
	TotalUsers int     `json:"total_users"`
}

func Pareto(records []repository.SessionRecord) ParetoResult {
	totals := userTotals(records)
	if len(totals) == 0 {
		return ParetoResult{NoData: true}
	}
	return ParetoResult{
		Top2:       ConcentrationRatio(totals, 2),
		Top5:       ConcentrationRatio(totals, 5),
		Top20Pct:   ConcentrationRatio(totals, TopCohortSize(len(totals))),
		TotalUsers: len(totals),
	}
}
