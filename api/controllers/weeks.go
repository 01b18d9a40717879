package controllers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/orderplanner/api/responses"
	"github.com/angelmondragon/orderplanner/api/validators"
	"github.com/angelmondragon/orderplanner/internal/ingest"
	"github.com/angelmondragon/orderplanner/internal/planning"
	"github.com/angelmondragon/orderplanner/internal/weeks"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/angelmondragon/orderplanner/pkg/logger"
)

const (
	uploadField    = "file"
	maxOrderNumber = 99
)

// WeekGet returns the week, creating it with its orders on first access.
func WeekGet(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetWeek(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// WeekPlan returns the per-product breakdown behind the stored needs.
func WeekPlan(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := svc.Plan(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

type forecastBatchRequest struct {
	Values map[string]float64 `json:"values" validate:"required,min=1,dive,keys,datetime=2006-01-02,endkeys,gte=0"`
}

func WeekSetForecastBatch(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload forecastBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.SetSalesForecastBatch(r.Context(), key, payload.Values)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

type valueRequest struct {
	Value *float64 `json:"value" validate:"required,gte=0"`
}

func WeekSetForecast(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		date, err := stringFromPath(r, "date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload valueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.SetSalesForecast(r.Context(), key, date, *payload.Value)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// WeekSetRealStock records the counted stock of a product for one order.
func WeekSetRealStock(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return orderValueHandler(logg, true, func(r *http.Request, t orderTarget, value *float64) (*weeks.WeekDTO, error) {
		return svc.SetRealStock(r.Context(), t.key, t.orderNumber, t.reference, value)
	})
}

// WeekClearRealStock drops the counted stock so carryover applies again.
func WeekClearRealStock(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return orderValueHandler(logg, false, func(r *http.Request, t orderTarget, _ *float64) (*weeks.WeekDTO, error) {
		return svc.SetRealStock(r.Context(), t.key, t.orderNumber, t.reference, nil)
	})
}

func WeekSetOrdered(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return orderValueHandler(logg, true, func(r *http.Request, t orderTarget, value *float64) (*weeks.WeekDTO, error) {
		return svc.SetOrderedQuantity(r.Context(), t.key, t.orderNumber, t.reference, *value)
	})
}

func WeekRecompute(svc weeks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Recompute(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// WeekImport loads a consumption spreadsheet uploaded as multipart field "file".
// The format comes from ?format=, then the file extension, then content sniffing.
func WeekImport(svc weeks.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "upload exceeds %d bytes", maxBytes))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart field \"file\" is required"))
			return
		}
		defer file.Close()

		format, err := uploadFormat(r.URL.Query().Get("format"), header.Filename)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"filename": header.Filename,
			"size":     header.Size,
		})
		result, err := svc.ImportSpreadsheet(ctx, key, file, format)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func uploadFormat(requested, filename string) (ingest.Format, error) {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "":
	case string(ingest.FormatXLSX):
		return ingest.FormatXLSX, nil
	case string(ingest.FormatCSV):
		return ingest.FormatCSV, nil
	default:
		return ingest.FormatAuto, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported format %q", requested)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ingest.FormatXLSX, nil
	case ".csv":
		return ingest.FormatCSV, nil
	}
	return ingest.FormatAuto, nil
}

type orderTarget struct {
	key         planning.WeekKey
	orderNumber int
	reference   string
}

func orderValueHandler(
	logg *logger.Logger,
	withBody bool,
	apply func(r *http.Request, target orderTarget, value *float64) (*weeks.WeekDTO, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := weekKeyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderNumber, err := validators.ParsePathInt(r, "orderNumber", 1, maxOrderNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference, err := stringFromPath(r, "reference")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var value *float64
		if withBody {
			var payload valueRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			value = payload.Value
		}

		ctx := logg.WithReference(r.Context(), reference)
		r = r.WithContext(ctx)
		dto, err := apply(r, orderTarget{key: key, orderNumber: orderNumber, reference: reference}, value)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}
