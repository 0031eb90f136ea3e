package app

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/juicerq/witch/internal/domain"
)

const maxCommonDays = 3

// ComputeStats aggregates the sessions of one channel. Hours and weekdays are
// read in loc.
func ComputeStats(sessions []domain.StreamSession, loc *time.Location) domain.StreamerStats {
	if len(sessions) == 0 {
		return domain.EmptyStats()
	}
	if loc == nil {
		loc = time.Local
	}

	sorted := slices.Clone(sessions)
	slices.SortStableFunc(sorted, func(a, b domain.StreamSession) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	var (
		hourSum     int
		durationSum float64
		closed      int
		dayCounts   = make(map[time.Weekday]int, 7)
		dayOrder    []time.Weekday
		lastOnline  = sorted[0].StartedAt
	)
	for _, s := range sorted {
		if s.StartedAt.After(lastOnline) {
			lastOnline = s.StartedAt
		}

		local := s.StartedAt.In(loc)
		hourSum += local.Hour()

		day := local.Weekday()
		if _, seen := dayCounts[day]; !seen {
			dayOrder = append(dayOrder, day)
		}
		dayCounts[day]++

		if s.EndedAt != nil {
			durationSum += s.EndedAt.Sub(s.StartedAt).Minutes()
			closed++
		}
	}

	// Stable sort keeps first-encountered order among equal counts.
	slices.SortStableFunc(dayOrder, func(a, b time.Weekday) int {
		return cmp.Compare(dayCounts[b], dayCounts[a])
	})
	days := make([]string, 0, maxCommonDays)
	for _, day := range dayOrder[:min(maxCommonDays, len(dayOrder))] {
		days = append(days, day.String())
	}

	avgHour := int(math.Round(float64(hourSum) / float64(len(sorted))))
	stats := domain.StreamerStats{
		LastOnline:       &lastOnline,
		TotalSessions:    len(sorted),
		AverageStartHour: &avgHour,
		CommonDays:       days,
	}
	if closed > 0 {
		avgDuration := int(math.Round(durationSum / float64(closed)))
		stats.AverageDuration = &avgDuration
	}
	return stats
}
