package planning

import (
	"fmt"
	"sort"
	"time"

	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
)

// DateLayout is the key format of forecast maps and delivery dates.
const DateLayout = "2006-01-02"

// WeekKey identifies an ISO-8601 week.
type WeekKey struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

func (k WeekKey) String() string {
	return fmt.Sprintf("%04d-W%02d", k.Year, k.Week)
}

// Validate rejects weeks outside 1..52 (or 53 in long ISO years).
func (k WeekKey) Validate() error {
	if k.Year < 1970 || k.Year > 9999 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "year %d out of range", k.Year)
	}
	if limit := ISOWeeksInYear(k.Year); k.Week < 1 || k.Week > limit {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "week %d out of range 1..%d for %d", k.Week, limit, k.Year)
	}
	return nil
}

// Before orders keys chronologically.
func (k WeekKey) Before(other WeekKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Week < other.Week
}

// Next returns the following ISO week.
func (k WeekKey) Next() WeekKey {
	return WeekOf(k.Monday().AddDate(0, 0, 7))
}

// Monday returns the first day of the week in UTC.
func (k WeekKey) Monday() time.Time {
	jan4 := time.Date(k.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(k.Week-1)*7)
}

// Dates returns the seven days of the week, Monday first.
func (k WeekKey) Dates() []time.Time {
	start := k.Monday()
	out := make([]time.Time, 0, 7)
	for i := 0; i < 7; i++ {
		out = append(out, start.AddDate(0, 0, i))
	}
	return out
}

// ISOWeeksInYear returns 52 or 53.
func ISOWeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) WeekKey {
	year, week := t.ISOWeek()
	return WeekKey{Year: year, Week: week}
}

// CurrentWeek returns the ISO week containing now, evaluated in now's location.
func CurrentWeek(now time.Time) WeekKey {
	return WeekOf(now)
}

type deliveryDay struct {
	weekday    time.Weekday
	weekOffset int
}

// deliverySchedule is the fixed replenishment calendar: Thursday and Saturday
// of the week, then Tuesday of the following week.
var deliverySchedule = []deliveryDay{
	{weekday: time.Thursday},
	{weekday: time.Saturday},
	{weekday: time.Tuesday, weekOffset: 1},
}

// DeliveryDates returns the delivery dates of ISO week (year, week) in
// chronological order. Order numbers are positions in this slice, starting at 1.
func DeliveryDates(year, week int) []time.Time {
	key := WeekKey{Year: year, Week: week}
	if key.Validate() != nil {
		return nil
	}
	start := key.Monday()
	out := make([]time.Time, 0, len(deliverySchedule))
	for _, d := range deliverySchedule {
		date := start.AddDate(0, 0, d.weekOffset*7+(int(d.weekday)+6)%7)
		if date.Weekday() != d.weekday || WeekOf(date) != key.plusWeeks(d.weekOffset) {
			continue
		}
		out = append(out, date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (k WeekKey) plusWeeks(n int) WeekKey {
	for i := 0; i < n; i++ {
		k = k.Next()
	}
	return k
}

// WeeksInMonth returns the distinct ISO weeks that intersect the month, sorted.
// Weeks straddling a year boundary keep their ISO year.
func WeeksInMonth(year int, month time.Month) []WeekKey {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	seen := map[WeekKey]struct{}{}
	out := []WeekKey{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := WeekOf(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ParseDate parses a YYYY-MM-DD key into a UTC midnight.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid date %q", value))
	}
	return t, nil
}

// DateKey formats t as a forecast key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
