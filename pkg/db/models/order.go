package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is one delivery within a week. Its maps are keyed by product reference.
type Order struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	WeekID            uuid.UUID  `gorm:"column:week_id;type:uuid;not null;uniqueIndex:orders_week_id_order_number_key"`
	OrderNumber       int        `gorm:"column:order_number;not null;uniqueIndex:orders_week_id_order_number_key"`
	DeliveryDate      time.Time  `gorm:"column:delivery_date;not null"`
	RealStock         Quantities `gorm:"column:real_stock;not null"`
	Needs             Quantities `gorm:"column:needs;not null"`
	OrderedQuantities Quantities `gorm:"column:ordered_quantities;not null"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderField names a per-product map column of an order.
type OrderField string

const (
	OrderFieldRealStock         OrderField = "real_stock"
	OrderFieldNeeds             OrderField = "needs"
	OrderFieldOrderedQuantities OrderField = "ordered_quantities"
)

// Column returns the backing column name, or "" for unknown fields.
func (f OrderField) Column() string {
	switch f {
	case OrderFieldRealStock, OrderFieldNeeds, OrderFieldOrderedQuantities:
		return string(f)
	default:
		return ""
	}
}

// WeekField names a map column of a week.
type WeekField string

const (
	WeekFieldSalesForecast   WeekField = "sales_forecast"
	WeekFieldConsumptionData WeekField = "consumption_data"
)

func (f WeekField) Column() string {
	switch f {
	case WeekFieldSalesForecast, WeekFieldConsumptionData:
		return string(f)
	default:
		return ""
	}
}
