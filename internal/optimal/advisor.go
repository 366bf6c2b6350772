// Package optimal ranks posting times against a static weekly engagement table.
// Every function is a pure function of the instant passed in; slots are
// interpreted in that instant's location.
package optimal

import (
	"sort"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
)

// Horizon bounds how far ahead Recommend looks.
type Horizon int

// Horizon values.
const (
	HorizonToday Horizon = iota
	HorizonTodayTomorrow
	HorizonWeek
)

// ParseHorizon maps the wire names "today", "tomorrow" and "week".
func ParseHorizon(s string) (Horizon, bool) {
	switch s {
	case "today":
		return HorizonToday, true
	case "tomorrow", "today+tomorrow":
		return HorizonTodayTomorrow, true
	case "week", "":
		return HorizonWeek, true
	}
	return 0, false
}

func (h Horizon) days() int {
	switch h {
	case HorizonToday:
		return 1
	case HorizonTodayTomorrow:
		return 2
	default:
		return 7
	}
}

// Slots is the weekly engagement table. Wednesday 10:00 is the global best.
var Slots = []domain.TimeSlot{
	{Weekday: time.Monday, Hour: 13, Rank: 2, Label: "Monday afternoon - 4-5x higher engagement"},
	{Weekday: time.Tuesday, Hour: 10, Rank: 3, Label: "Tuesday mid-morning"},
	{Weekday: time.Tuesday, Hour: 12, Rank: 5, Label: "Tuesday lunchtime"},
	{Weekday: time.Wednesday, Hour: 10, Rank: 1, Label: "Wednesday 10 AM - peak engagement time"},
	{Weekday: time.Wednesday, Hour: 12, Rank: 4, Label: "Wednesday noon"},
	{Weekday: time.Wednesday, Hour: 18, Rank: 6, Label: "Wednesday evening"},
	{Weekday: time.Thursday, Hour: 10, Rank: 3, Label: "Thursday morning"},
	{Weekday: time.Thursday, Hour: 17, Rank: 5, Label: "Thursday evening"},
	{Weekday: time.Friday, Hour: 10, Rank: 4, Label: "Friday morning"},
	{Weekday: time.Friday, Hour: 17, Rank: 6, Label: "Friday evening"},
	{Weekday: time.Saturday, Hour: 11, Rank: 7, Label: "Saturday late morning"},
	{Weekday: time.Saturday, Hour: 15, Rank: 8, Label: "Saturday afternoon"},
	{Weekday: time.Sunday, Hour: 11, Rank: 7, Label: "Sunday late morning"},
	{Weekday: time.Sunday, Hour: 15, Rank: 8, Label: "Sunday afternoon"},
}

const (
	bestWeekday = time.Wednesday
	bestHour    = 10

	lateNightStart = 23
	lateNightEnd   = 6
	deepWorkStart  = 13
	deepWorkEnd    = 16
)

var avoidWindows = []domain.AvoidWindow{
	{StartHour: lateNightStart, EndHour: lateNightEnd, Hours: "23:00 - 06:00",
		Reason: "Late night to early morning - lowest engagement"},
	{StartHour: deepWorkStart, EndHour: deepWorkEnd, WeekdaysOnly: true, Hours: "13:00 - 16:00",
		Reason: "Weekday afternoons - deep work block"},
}

// Avoid returns the advisory low-engagement windows.
func Avoid() []domain.AvoidWindow {
	out := make([]domain.AvoidWindow, len(avoidWindows))
	copy(out, avoidWindows)
	return out
}

// SlotsFor returns the table entries for a weekday in hour order.
func SlotsFor(day time.Weekday) []domain.TimeSlot {
	var out []domain.TimeSlot
	for _, s := range Slots {
		if s.Weekday == day {
			out = append(out, s)
		}
	}
	return out
}

// CurrentQuality grades now. Rules apply in order: late night, a slot
// within an hour today, the weekday deep-work block, everything else.
func CurrentQuality(now time.Time) domain.Quality {
	h := now.Hour()
	if h >= lateNightStart || h < lateNightEnd {
		return domain.Quality{
			Score:      2,
			Label:      domain.QualityPoor,
			Reason:     avoidWindows[0].Reason,
			Suggestion: "Consider waiting for a better time",
		}
	}

	if slot, start, ok := nearestSlotToday(now); ok {
		s := slot
		if !now.Before(start) && now.Before(start.Add(time.Hour)) {
			return domain.Quality{
				Score:      9,
				Label:      domain.QualityBest,
				Reason:     slot.Label,
				Suggestion: "Great time to post!",
				Slot:       &s,
			}
		}
		return domain.Quality{
			Score:      7,
			Label:      domain.QualityGood,
			Reason:     slot.Label,
			Suggestion: "Close to an optimal slot - posting now is a good choice",
			Slot:       &s,
		}
	}

	if isWeekday(now.Weekday()) && h >= deepWorkStart && h < deepWorkEnd {
		return domain.Quality{
			Score:      3,
			Label:      domain.QualityPoor,
			Reason:     avoidWindows[1].Reason,
			Suggestion: "Consider waiting for a better time",
		}
	}

	return domain.Quality{
		Score:      5,
		Label:      domain.QualityFair,
		Reason:     "Not peak engagement time, but acceptable",
		Suggestion: "Posting now is fine, but optimal times may get more engagement",
	}
}

// nearestSlotToday finds today's slot whose start is within an hour of now.
// On equal distance the slot that has not started yet wins.
func nearestSlotToday(now time.Time) (domain.TimeSlot, time.Time, bool) {
	var (
		best      domain.TimeSlot
		bestStart time.Time
		bestDist  time.Duration
		found     bool
	)
	for _, s := range SlotsFor(now.Weekday()) {
		start := at(now, 0, s.Hour)
		dist := absDuration(now.Sub(start))
		if dist > time.Hour {
			continue
		}
		if !found || dist < bestDist || (dist == bestDist && !start.Before(now)) {
			best, bestStart, bestDist, found = s, start, dist, true
		}
	}
	return best, bestStart, found
}

// Recommend lists concrete slot instants within the horizon, nearest first.
// Slots that start before now are excluded; one starting exactly at now is kept.
func Recommend(now time.Time, horizon Horizon) []domain.Recommendation {
	var out []domain.Recommendation
	for d := 0; d < horizon.days(); d++ {
		day := now.AddDate(0, 0, d).Weekday()
		for _, s := range SlotsFor(day) {
			t := at(now, d, s.Hour)
			if t.Before(now) {
				continue
			}
			out = append(out, recommendation(s, t, d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Next returns the first recommended instant strictly after now.
func Next(now time.Time) (domain.Recommendation, bool) {
	for _, r := range Recommend(now, HorizonWeek) {
		if r.At.After(now) {
			return r, true
		}
	}
	return domain.Recommendation{}, false
}

// Upcoming returns at most n recommendations strictly after now.
func Upcoming(now time.Time, n int) []domain.Recommendation {
	var out []domain.Recommendation
	for _, r := range Recommend(now, HorizonWeek) {
		if len(out) == n {
			break
		}
		if r.At.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// BestThisWeek returns the next Wednesday 10:00 at or after now.
func BestThisWeek(now time.Time) domain.Recommendation {
	days := (int(bestWeekday) - int(now.Weekday()) + 7) % 7
	t := at(now, days, bestHour)
	if t.Before(now) {
		days += 7
		t = at(now, days, bestHour)
	}
	var slot domain.TimeSlot
	for _, s := range Slots {
		if s.Rank == 1 {
			slot = s
			break
		}
	}
	r := recommendation(slot, t, days)
	r.Reason = "Wednesday 10 AM - statistically the best time for engagement"
	return r
}

func recommendation(s domain.TimeSlot, t time.Time, dayOffset int) domain.Recommendation {
	relative := t.Format("Monday")
	switch dayOffset {
	case 0:
		relative = "today"
	case 1:
		relative = "tomorrow"
	}
	priority := "medium"
	if s.Rank == 1 {
		priority = "high"
	}
	return domain.Recommendation{
		Slot:     s,
		At:       t,
		Day:      t.Format("Monday"),
		Time:     t.Format("03:04 PM"),
		Relative: relative,
		Priority: priority,
		Reason:   s.Label,
	}
}

// at returns hour:00 on the calendar day dayOffset days after now's date.
func at(now time.Time, dayOffset, hour int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+dayOffset, hour, 0, 0, 0, now.Location())
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
