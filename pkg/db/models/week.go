package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quantities maps a key (product reference or ISO date) to a number, stored as JSON.
type Quantities = datatypes.JSONType[map[string]float64]

// NewQuantities wraps m, substituting an empty map for nil.
func NewQuantities(m map[string]float64) Quantities {
	if m == nil {
		m = map[string]float64{}
	}
	return datatypes.NewJSONType(m)
}

// QuantityMap returns a mutable copy of q's data.
func QuantityMap(q Quantities) map[string]float64 {
	data := q.Data()
	out := make(map[string]float64, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Week holds the planning inputs of one ISO week.
type Week struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Year            int        `gorm:"column:year;not null;uniqueIndex:weeks_year_week_number_key"`
	WeekNumber      int        `gorm:"column:week_number;not null;uniqueIndex:weeks_year_week_number_key"`
	SalesForecast   Quantities `gorm:"column:sales_forecast;not null"`
	ConsumptionData Quantities `gorm:"column:consumption_data;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	Orders          []Order    `gorm:"foreignKey:WeekID;constraint:OnDelete:CASCADE"`
}

func (Week) TableName() string { return "weeks" }

func (w *Week) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
