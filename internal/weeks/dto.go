package weeks

import (
	"time"

	"github.com/angelmondragon/orderplanner/internal/ingest"
	"github.com/angelmondragon/orderplanner/internal/planning"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/google/uuid"
)

// WeekDTO is the planning view of one ISO week.
type WeekDTO struct {
	ID              uuid.UUID          `json:"id"`
	Year            int                `json:"year"`
	Week            int                `json:"week"`
	Label           string             `json:"label"`
	Dates           []string           `json:"dates"`
	SalesForecast   map[string]float64 `json:"sales_forecast"`
	ConsumptionData map[string]float64 `json:"consumption_data"`
	Orders          []OrderDTO         `json:"orders"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// OrderDTO is one delivery of a week.
type OrderDTO struct {
	ID                uuid.UUID          `json:"id"`
	OrderNumber       int                `json:"order_number"`
	DeliveryDate      string             `json:"delivery_date"`
	RealStock         map[string]float64 `json:"real_stock"`
	Needs             map[string]float64 `json:"needs"`
	OrderedQuantities map[string]float64 `json:"ordered_quantities"`
}

// PlanDTO exposes the calculator breakdown of a week.
type PlanDTO struct {
	Year   int                    `json:"year"`
	Week   int                    `json:"week"`
	Orders []planning.OrderResult `json:"orders"`
}

// ImportResult summarizes a consumption import into a week.
type ImportResult struct {
	Products int            `json:"products"`
	Report   *ingest.Report `json:"report,omitempty"`
	Week     *WeekDTO       `json:"week"`
	// Warnings lists open weeks that could not be refreshed with the new ratios.
	Warnings []string       `json:"warnings,omitempty"`
}

// NewWeekDTO builds the DTO from persisted rows.
func NewWeekDTO(week *models.Week, orders []models.Order) *WeekDTO {
	key := planning.WeekKey{Year: week.Year, Week: week.WeekNumber}
	dates := key.Dates()
	dto := &WeekDTO{
		ID:              week.ID,
		Year:            week.Year,
		Week:            week.WeekNumber,
		Label:           key.String(),
		Dates:           make([]string, 0, len(dates)),
		SalesForecast:   models.QuantityMap(week.SalesForecast),
		ConsumptionData: models.QuantityMap(week.ConsumptionData),
		Orders:          make([]OrderDTO, 0, len(orders)),
		UpdatedAt:       week.UpdatedAt,
	}
	for _, d := range dates {
		dto.Dates = append(dto.Dates, planning.DateKey(d))
	}
	for i := range orders {
		dto.Orders = append(dto.Orders, NewOrderDTO(&orders[i]))
	}
	return dto
}

func NewOrderDTO(order *models.Order) OrderDTO {
	return OrderDTO{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		DeliveryDate:      planning.DateKey(order.DeliveryDate),
		RealStock:         models.QuantityMap(order.RealStock),
		Needs:             models.QuantityMap(order.Needs),
		OrderedQuantities: models.QuantityMap(order.OrderedQuantities),
	}
}

// planningWeek maps a week row onto the calculator input.
func planningWeek(week *models.Week) planning.Week {
	return planning.Week{
		Key:             planning.WeekKey{Year: week.Year, Week: week.WeekNumber},
		SalesForecast:   week.SalesForecast.Data(),
		ConsumptionData: week.ConsumptionData.Data(),
	}
}

func planningOrders(orders []models.Order) []planning.Order {
	out := make([]planning.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, planning.Order{
			Number:            o.OrderNumber,
			DeliveryDate:      o.DeliveryDate,
			RealStock:         o.RealStock.Data(),
			Needs:             o.Needs.Data(),
			OrderedQuantities: o.OrderedQuantities.Data(),
		})
	}
	return out
}
