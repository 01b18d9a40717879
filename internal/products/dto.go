package product

import (
	"time"

	"github.com/angelmondragon/orderplanner/internal/planning"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/google/uuid"
)

// ProductDTO represents the catalog entry returned to clients.
type ProductDTO struct {
	ID                 uuid.UUID                `json:"id"`
	Reference          string                   `json:"reference"`
	Name               string                   `json:"name"`
	StockUnit          string                   `json:"stock_unit"`
	DestinationCode    string                   `json:"destination_code"`
	ConsumptionPer1000 float64                  `json:"consumption_per_1000"`
	UnitConversion     *planning.UnitConversion `json:"unit_conversion,omitempty"`
	IsHidden           bool                     `json:"is_hidden"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	return &ProductDTO{
		ID:                 product.ID,
		Reference:          product.Reference,
		Name:               product.Name,
		StockUnit:          product.StockUnit,
		DestinationCode:    product.DestinationCode,
		ConsumptionPer1000: product.ConsumptionPer1000,
		UnitConversion:     UnitConversionOf(*product),
		IsHidden:           product.IsHidden,
		CreatedAt:          product.CreatedAt,
		UpdatedAt:          product.UpdatedAt,
	}
}

// UnitConversionOf returns the product's pack rule, or nil when none is configured.
func UnitConversionOf(product models.Product) *planning.UnitConversion {
	if !product.HasUnitConversion() {
		return nil
	}
	conv := &planning.UnitConversion{
		NumberOfPacks: *product.ConversionNumberOfPacks,
		UnitsPerPack:  *product.ConversionUnitsPerPack,
	}
	if product.ConversionUnit != nil {
		conv.Unit = *product.ConversionUnit
	}
	return conv
}

// PlanningProduct maps a catalog row onto the calculator input.
func PlanningProduct(product models.Product) planning.Product {
	return planning.Product{
		Reference:          product.Reference,
		ConsumptionPer1000: product.ConsumptionPer1000,
		Conversion:         UnitConversionOf(product),
		Hidden:             product.IsHidden,
	}
}

// PlanningProducts maps a catalog onto calculator inputs.
func PlanningProducts(rows []models.Product) []planning.Product {
	out := make([]planning.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, PlanningProduct(row))
	}
	return out
}
