package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/orderplanner/api/responses"
	"github.com/angelmondragon/orderplanner/api/validators"
	"github.com/angelmondragon/orderplanner/internal/planning"
	"github.com/angelmondragon/orderplanner/pkg/logger"
)

type weekSummary struct {
	Year          int      `json:"year"`
	Week          int      `json:"week"`
	Label         string   `json:"label"`
	Dates         []string `json:"dates"`
	DeliveryDates []string `json:"delivery_dates"`
}

func newWeekSummary(key planning.WeekKey) weekSummary {
	out := weekSummary{Year: key.Year, Week: key.Week, Label: key.String()}
	for _, d := range key.Dates() {
		out.Dates = append(out.Dates, planning.DateKey(d))
	}
	for _, d := range planning.DeliveryDates(key.Year, key.Week) {
		out.DeliveryDates = append(out.DeliveryDates, planning.DateKey(d))
	}
	return out
}

// CalendarCurrentWeek returns the ISO week containing now.
func CalendarCurrentWeek(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, newWeekSummary(planning.CurrentWeek(now())))
	}
}

// CalendarWeeksInMonth lists the ISO weeks intersecting ?year=&month=.
func CalendarWeeksInMonth(now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		today := now()
		year, err := validators.ParseQueryInt(r, "year", today.Year(), 1970, 9999)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryInt(r, "month", int(today.Month()), 1, 12)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		keys := planning.WeeksInMonth(year, time.Month(month))
		out := make([]weekSummary, 0, len(keys))
		for _, key := range keys {
			out = append(out, newWeekSummary(key))
		}
		responses.WriteSuccess(w, out)
	}
}

// CalendarWeek describes one ISO week and its delivery dates.
func CalendarWeek(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWeekSummary(key))
	}
}
