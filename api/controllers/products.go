package controllers

import (
	"net/http"

	"github.com/angelmondragon/orderplanner/api/responses"
	"github.com/angelmondragon/orderplanner/api/validators"
	product "github.com/angelmondragon/orderplanner/internal/products"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/angelmondragon/orderplanner/pkg/logger"
)

const maxSearchLen = 120

// ProductList returns the catalog filtered by ?q=, ?destination= and ?include_hidden=.
func ProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		includeHidden, err := validators.ParseQueryBool(r, "include_hidden")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		rows, err := svc.ListProducts(r.Context(), product.ListFilter{
			Query:           validators.SanitizeString(query.Get("q"), maxSearchLen),
			DestinationCode: validators.SanitizeString(query.Get("destination"), maxSearchLen),
			IncludeHidden:   includeHidden,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func ProductGet(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := stringFromPath(r, "reference")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.GetProduct(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

type updateProductRequest struct {
	Name               *string  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	StockUnit          *string  `json:"stock_unit,omitempty" validate:"omitempty,max=32"`
	DestinationCode    *string  `json:"destination_code,omitempty" validate:"omitempty,max=64"`
	ConsumptionPer1000 *float64 `json:"consumption_per_1000,omitempty" validate:"omitempty,gte=0"`
	IsHidden           *bool    `json:"is_hidden,omitempty"`
}

// ProductUpdate applies a partial update. Ratio or visibility changes
// trigger a recompute of the open weeks.
func ProductUpdate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := stringFromPath(r, "reference")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.UpdateProduct(r.Context(), reference, product.UpdateProductInput{
			Name:               payload.Name,
			StockUnit:          payload.StockUnit,
			DestinationCode:    payload.DestinationCode,
			ConsumptionPer1000: payload.ConsumptionPer1000,
			IsHidden:           payload.IsHidden,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

type visibilityRequest struct {
	Hidden *bool `json:"hidden" validate:"required"`
}

func ProductSetVisibility(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := stringFromPath(r, "reference")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload visibilityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.SetVisibility(r.Context(), reference, *payload.Hidden)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

type unitConversionRequest struct {
	NumberOfPacks *float64 `json:"number_of_packs" validate:"required,gte=0"`
	UnitsPerPack  *float64 `json:"units_per_pack" validate:"required,gte=0"`
	Unit          string   `json:"unit" validate:"max=32"`
}

func ProductSetUnitConversion(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := stringFromPath(r, "reference")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload unitConversionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.SetUnitConversion(r.Context(), reference, &product.UnitConversionInput{
			NumberOfPacks: *payload.NumberOfPacks,
			UnitsPerPack:  *payload.UnitsPerPack,
			Unit:          payload.Unit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func ProductClearUnitConversion(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := stringFromPath(r, "reference")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.SetUnitConversion(r.Context(), reference, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}
