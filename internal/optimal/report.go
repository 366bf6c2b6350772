package optimal

import (
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
)

// Report is the full advisory view returned by get_optimal_times.
type Report struct {
	CurrentTime    time.Time               `json:"current_time"`
	Timezone       string                  `json:"timezone"`
	CurrentQuality domain.Quality          `json:"current_quality"`
	Today          []domain.Recommendation `json:"today"`
	Tomorrow       []domain.Recommendation `json:"tomorrow"`
	BestThisWeek   domain.Recommendation   `json:"best_this_week"`
	Avoid          []domain.AvoidWindow    `json:"avoid"`
}

// BuildReport assembles the advisory view for now.
func BuildReport(now time.Time) Report {
	r := Report{
		CurrentTime:    now,
		Timezone:       now.Location().String(),
		CurrentQuality: CurrentQuality(now),
		Today:          []domain.Recommendation{},
		Tomorrow:       []domain.Recommendation{},
		BestThisWeek:   BestThisWeek(now),
		Avoid:          Avoid(),
	}
	for _, rec := range Recommend(now, HorizonTodayTomorrow) {
		if rec.Relative == "today" {
			r.Today = append(r.Today, rec)
		} else {
			r.Tomorrow = append(r.Tomorrow, rec)
		}
	}
	return r
}
