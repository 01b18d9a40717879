package planning

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

// Week is the calculator's view of a week's inputs.
type Week struct {
	Key             WeekKey
	SalesForecast   map[string]float64
	ConsumptionData map[string]float64
}

// Order is the calculator's view of one delivery. Maps are keyed by product reference.
type Order struct {
	Number            int
	DeliveryDate      time.Time
	RealStock         map[string]float64
	Needs             map[string]float64
	OrderedQuantities map[string]float64
}

// StockSource tells how an order's initial stock was determined.
type StockSource string

const (
	StockSourceExplicit  StockSource = "explicit"
	StockSourceCarryover StockSource = "carryover"
	StockSourceNone      StockSource = "none"
)

// Line is the breakdown of one product's need for one order. Stock and
// consumption are in stock units; Need is in order units.
type Line struct {
	Reference    string      `json:"reference"`
	Ratio        float64     `json:"ratio"`
	RatioSource  RatioSource `json:"ratio_source"`
	InitialStock float64     `json:"initial_stock"`
	StockSource  StockSource `json:"stock_source"`
	Consumption  float64     `json:"consumption"`
	RawNeed      float64     `json:"raw_need"`
	Need         float64     `json:"need"`
}

// OrderResult holds the computed needs of one order.
type OrderResult struct {
	Number        int             `json:"order_number"`
	DeliveryDate  time.Time       `json:"delivery_date"`
	ForecastDates []string        `json:"forecast_dates"`
	Revenue       float64         `json:"revenue"`
	Lines         map[string]Line `json:"lines"`
}

// Needs returns the persisted needs map of the order.
func (r OrderResult) Needs() map[string]float64 {
	out := make(map[string]float64, len(r.Lines))
	for ref, line := range r.Lines {
		out[ref] = line.Need
	}
	return out
}

// Result lists per-order results by ascending order number.
type Result struct {
	Orders []OrderResult `json:"orders"`
}

// NeedsByOrder indexes the needs maps by order number.
func (r Result) NeedsByOrder() map[int]map[string]float64 {
	out := make(map[int]map[string]float64, len(r.Orders))
	for _, o := range r.Orders {
		out[o.Number] = o.Needs()
	}
	return out
}

// Calculate derives the needs of every order in week.
//
// Orders are processed by ascending order number. Each forecast date is
// assigned to exactly one order: the earliest delivery on or after that date.
// Dates after the last delivery, and keys that are not dates, are ignored.
// An order's initial stock is its explicit real stock when the key is
// present, otherwise what the previous order left over: ordered minus
// needed. An under-ordered previous order carries a negative stock, so its
// shortfall is added to this order's need. Only the raw need is floored at
// zero. Needs are rounded up to whole order units.
//
// Calculate is a pure function of its inputs.
func Calculate(week Week, products []Product, orders []Order) Result {
	sorted := make([]Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	windows := partitionForecast(week.SalesForecast, sorted)

	visible := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Hidden || p.Reference == "" {
			continue
		}
		visible = append(visible, p)
	}

	result := Result{Orders: make([]OrderResult, 0, len(sorted))}
	var prev *Order
	prevNeeds := map[string]decimal.Decimal{}

	for i := range sorted {
		order := sorted[i]
		window := windows[order.Number]
		revenue := window.revenue

		res := OrderResult{
			Number:        order.Number,
			DeliveryDate:  order.DeliveryDate,
			ForecastDates: window.dates,
			Revenue:       revenue.InexactFloat64(),
			Lines:         make(map[string]Line, len(visible)),
		}
		needs := make(map[string]decimal.Decimal, len(visible))

		for _, p := range visible {
			ratio, ratioSource := ResolveConsumptionRatio(p, week)
			stock, stockSource := initialStock(p, order, prev, prevNeeds)

			consumption := revenue.Mul(ratio).Div(thousand)
			raw := decimal.Max(decimal.Zero, consumption.Sub(stock))
			need := ResolveUnitConversion(raw, p.Conversion).Ceil()
			needs[p.Reference] = need

			res.Lines[p.Reference] = Line{
				Reference:    p.Reference,
				Ratio:        ratio.InexactFloat64(),
				RatioSource:  ratioSource,
				InitialStock: display(stock),
				StockSource:  stockSource,
				Consumption:  display(consumption),
				RawNeed:      display(raw),
				Need:         need.InexactFloat64(),
			}
		}

		result.Orders = append(result.Orders, res)
		prev = &sorted[i]
		prevNeeds = needs
	}

	return result
}

func initialStock(p Product, order Order, prev *Order, prevNeeds map[string]decimal.Decimal) (decimal.Decimal, StockSource) {
	if v, ok := order.RealStock[p.Reference]; ok {
		return nonNegative(v), StockSourceExplicit
	}
	if prev == nil {
		return decimal.Zero, StockSourceNone
	}

	ordered := nonNegative(prev.OrderedQuantities[p.Reference])
	carry := ordered.Sub(prevNeeds[p.Reference])
	if p.Conversion != nil && p.Conversion.Valid() {
		// ordered and needs are in packs; stock is counted in units
		carry = carry.Mul(p.Conversion.TotalUnitsPerPack())
	}
	return carry, StockSourceCarryover
}

type forecastWindow struct {
	dates   []string
	revenue decimal.Decimal
}

func partitionForecast(forecast map[string]float64, orders []Order) map[int]forecastWindow {
	byDate := make([]Order, len(orders))
	copy(byDate, orders)
	sort.SliceStable(byDate, func(i, j int) bool {
		return truncateDay(byDate[i].DeliveryDate).Before(truncateDay(byDate[j].DeliveryDate))
	})

	windows := make(map[int]forecastWindow, len(orders))
	for _, o := range orders {
		windows[o.Number] = forecastWindow{dates: []string{}, revenue: decimal.Zero}
	}

	keys := make([]string, 0, len(forecast))
	for k := range forecast {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		date, err := ParseDate(key)
		if err != nil {
			continue
		}
		for _, o := range byDate {
			if truncateDay(o.DeliveryDate).Before(date) {
				continue
			}
			w := windows[o.Number]
			w.dates = append(w.dates, key)
			w.revenue = w.revenue.Add(nonNegative(forecast[key]))
			windows[o.Number] = w
			break
		}
	}
	return windows
}

func display(d decimal.Decimal) float64 {
	return d.Round(6).InexactFloat64()
}
