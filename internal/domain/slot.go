package domain

import "time"

// TimeSlot is a recurring weekly engagement window, starting on the hour.
type TimeSlot struct {
	Weekday time.Weekday `json:"weekday"`
	Hour    int          `json:"hour"`
	Label   string       `json:"label"`
	Rank    int          `json:"rank"` // 1 is best
}

// QualityLabel grades the current moment for posting.
type QualityLabel string

// QualityLabel constants.
const (
	QualityBest QualityLabel = "best"
	QualityGood QualityLabel = "good"
	QualityFair QualityLabel = "fair"
	QualityPoor QualityLabel = "poor"
)

// Quality is the assessment of a single instant.
type Quality struct {
	Score      int          `json:"score"`
	Label      QualityLabel `json:"quality"`
	Reason     string       `json:"reason"`
	Suggestion string       `json:"suggestion"`
	Slot       *TimeSlot    `json:"slot,omitempty"`
}

// Recommendation is a concrete upcoming instant for a slot.
type Recommendation struct {
	Slot     TimeSlot  `json:"slot"`
	At       time.Time `json:"datetime"`
	Day      string    `json:"day"`
	Time     string    `json:"time"`
	Relative string    `json:"relative"` // today, tomorrow, or a weekday name
	Priority string    `json:"priority"` // high for the peak slot, medium otherwise
	Reason   string    `json:"reason"`
}

// AvoidWindow is an advisory range of hours with low engagement.
type AvoidWindow struct {
	StartHour    int    `json:"start_hour"`
	EndHour      int    `json:"end_hour"`
	WeekdaysOnly bool   `json:"weekdays_only"`
	Hours        string `json:"hours"`
	Reason       string `json:"reason"`
}
