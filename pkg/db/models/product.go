package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a catalog entry identified by its supplier reference.
type Product struct {
	ID                      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Reference               string    `gorm:"column:reference;not null;uniqueIndex"`
	Name                    string    `gorm:"column:name;not null"`
	StockUnit               string    `gorm:"column:stock_unit;not null;default:''"`
	DestinationCode         string    `gorm:"column:destination_code;not null;default:''"`
	ConsumptionPer1000      float64   `gorm:"column:consumption_per_1000;not null;default:0"`
	ConversionNumberOfPacks *float64  `gorm:"column:conversion_number_of_packs"`
	ConversionUnitsPerPack  *float64  `gorm:"column:conversion_units_per_pack"`
	ConversionUnit          *string   `gorm:"column:conversion_unit"`
	IsHidden                bool      `gorm:"column:is_hidden;not null;default:false"`
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// BeforeCreate assigns an id when the caller did not.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasUnitConversion reports whether both numeric conversion fields are set.
func (p Product) HasUnitConversion() bool {
	return p.ConversionNumberOfPacks != nil && p.ConversionUnitsPerPack != nil
}

// ClearUnitConversion removes the pack rule so needs are expressed in stock units.
func (p *Product) ClearUnitConversion() {
	p.ConversionNumberOfPacks = nil
	p.ConversionUnitsPerPack = nil
	p.ConversionUnit = nil
}
