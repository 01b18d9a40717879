package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/orderplanner/internal/ingest"
	product "github.com/angelmondragon/orderplanner/internal/products"
	"github.com/angelmondragon/orderplanner/internal/weeks"
	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var routerNow = time.Date(2024, time.June, 4, 9, 0, 0, 0, time.UTC)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return fmt.Errorf("connection refused") }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev, CORSOrigins: []string{"http://localhost:3000"}},
		Import: config.ImportConfig{
			MaxUploadMB:           1,
			HeaderRows:            1,
			ReferenceColumn:       "A",
			NameColumn:            "B",
			StockUnitColumn:       "C",
			DestinationCodeColumn: "D",
			ConsumptionColumn:     "E",
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *product.Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrate(conn))

	cfg := testConfig()
	logg := logger.Nop()
	dbClient := db.FromGorm(conn)
	parser, err := ingest.NewParser(cfg.Import)
	require.NoError(t, err)

	products := product.NewRepository(conn)
	now := func() time.Time { return routerNow }
	weekSvc, err := weeks.NewService(weeks.ServiceParams{
		Repository: weeks.NewRepository(conn),
		Products:   products,
		DB:         dbClient,
		Parser:     parser,
		Logger:     logg,
		Now:        now,
	})
	require.NoError(t, err)
	productSvc, err := product.NewService(products, dbClient, weekSvc, logg)
	require.NoError(t, err)

	return NewRouter(cfg, logg, Dependencies{
		DB:       dbClient,
		Products: productSvc,
		Weeks:    weekSvc,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Now:      now,
	}), products
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return serve(t, h, req)
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeWeek(t *testing.T, env envelope) weeks.WeekDTO {
	t.Helper()
	var dto weeks.WeekDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	return dto
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, _ := doJSON(t, h, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.AppEnvDev, rec.Header().Get("X-OrderPlanner-Env"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec, _ = doJSON(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	cfg := testConfig()
	h := NewRouter(cfg, logger.Nop(), Dependencies{Redis: failingPinger{}})

	rec, env := doJSON(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DEPENDENCY_ERROR", env.Error.Code)
	assert.Equal(t, "unavailable", env.Error.Details["redis"])
}

func TestCalendarRoutes(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := doJSON(t, h, http.MethodGet, "/api/v1/calendar/current-week", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current struct {
		Year          int      `json:"year"`
		Week          int      `json:"week"`
		DeliveryDates []string `json:"delivery_dates"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, 2024, current.Year)
	assert.Equal(t, 23, current.Week)
	assert.Equal(t, []string{"2024-06-06", "2024-06-08", "2024-06-11"}, current.DeliveryDates)

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/calendar/weeks?year=2024&month=6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var month []struct {
		Week int `json:"week"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &month))
	require.NotEmpty(t, month)
	assert.Equal(t, 22, month[0].Week)

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/calendar/weeks?month=13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/calendar/weeks/2021/53", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeekPlanningFlow(t *testing.T) {
	h, products := newTestRouter(t)
	_, err := products.CreateProduct(context.Background(), &models.Product{
		Reference: "P1", Name: "Tomatoes", StockUnit: "kg", ConsumptionPer1000: 2.5,
	})
	require.NoError(t, err)

	rec, env := doJSON(t, h, http.MethodGet, "/api/v1/weeks/2024/23", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	week := decodeWeek(t, env)
	require.Len(t, week.Orders, 3)
	assert.Equal(t, "2024-06-06", week.Orders[0].DeliveryDate)

	rec, env = doJSON(t, h, http.MethodPut, "/api/v1/weeks/2024/23/forecast/2024-06-04", map[string]any{"value": 1000})
	require.Equal(t, http.StatusOK, rec.Code)
	week = decodeWeek(t, env)
	assert.Equal(t, 3.0, week.Orders[0].Needs["P1"])

	rec, env = doJSON(t, h, http.MethodPut, "/api/v1/weeks/2024/23/orders/1/ordered/P1", map[string]any{"value": 9})
	require.Equal(t, http.StatusOK, rec.Code)
	week = decodeWeek(t, env)
	assert.Equal(t, 9.0, week.Orders[0].OrderedQuantities["P1"])

	rec, env = doJSON(t, h, http.MethodPut, "/api/v1/weeks/2024/23/orders/2/stock/P1", map[string]any{"value": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	week = decodeWeek(t, env)
	assert.Contains(t, week.Orders[1].RealStock, "P1")

	rec, env = doJSON(t, h, http.MethodDelete, "/api/v1/weeks/2024/23/orders/2/stock/P1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	week = decodeWeek(t, env)
	assert.NotContains(t, week.Orders[1].RealStock, "P1")

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/weeks/2024/23/plan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plan weeks.PlanDTO
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Len(t, plan.Orders, 3)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/weeks/2024/23/recompute", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWeekRoutesRejectBadInput(t *testing.T) {
	h, products := newTestRouter(t)
	_, err := products.CreateProduct(context.Background(), &models.Product{Reference: "P1", Name: "Tomatoes"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"week out of range", http.MethodGet, "/api/v1/weeks/2024/54", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative forecast", http.MethodPut, "/api/v1/weeks/2024/23/forecast/2024-06-04", map[string]any{"value": -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing value", http.MethodPut, "/api/v1/weeks/2024/23/forecast/2024-06-04", map[string]any{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPut, "/api/v1/weeks/2024/23/forecast/2024-06-04", map[string]any{"value": 1, "extra": true}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"date outside week", http.MethodPut, "/api/v1/weeks/2024/23/forecast/2024-07-01", map[string]any{"value": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad batch key", http.MethodPut, "/api/v1/weeks/2024/23/forecast", map[string]any{"values": map[string]float64{"monday": 1}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown order", http.MethodPut, "/api/v1/weeks/2024/23/orders/4/ordered/P1", map[string]any{"value": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"unknown product", http.MethodPut, "/api/v1/weeks/2024/23/orders/1/ordered/NOPE", map[string]any{"value": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"order zero", http.MethodPut, "/api/v1/weeks/2024/23/orders/0/stock/P1", map[string]any{"value": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"plan of unknown week", http.MethodGet, "/api/v1/weeks/2030/10/plan", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := doJSON(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestWeekImportMultipart(t *testing.T) {
	h, _ := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "consumption.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("reference;name;unit;destination;consumption\nP1;Tomatoes;kg;KITCHEN;2,5\nP2;Lemons;pc;BAR;0,5\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/weeks/2024/23/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, env := serve(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result weeks.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.Products)
	require.NotNil(t, result.Week)
	assert.Equal(t, 2.5, result.Week.ConsumptionData["P1"])

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/products?q=tomato", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []product.ProductDTO
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "P1", rows[0].Reference)
}

func TestWeekImportRequiresFile(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/weeks/2024/23/import?format=csv", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "text/plain")
	rec, env := serve(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestProductRoutesRecomputeOpenWeeks(t *testing.T) {
	h, products := newTestRouter(t)
	_, err := products.CreateProduct(context.Background(), &models.Product{Reference: "P1", Name: "Tomatoes", ConsumptionPer1000: 1})
	require.NoError(t, err)

	rec, env := doJSON(t, h, http.MethodPut, "/api/v1/weeks/2024/23/forecast", map[string]any{
		"values": map[string]float64{"2024-06-04": 1000},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeWeek(t, env).Orders[0].Needs["P1"])

	rec, _ = doJSON(t, h, http.MethodPatch, "/api/v1/products/P1", map[string]any{"consumption_per_1000": 4})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/weeks/2024/23", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, decodeWeek(t, env).Orders[0].Needs["P1"])

	rec, env = doJSON(t, h, http.MethodPut, "/api/v1/products/P1/unit-conversion", map[string]any{
		"number_of_packs": 1, "units_per_pack": 6, "unit": "box",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var row product.ProductDTO
	require.NoError(t, json.Unmarshal(env.Data, &row))
	require.NotNil(t, row.UnitConversion)

	rec, env = doJSON(t, h, http.MethodDelete, "/api/v1/products/P1/unit-conversion", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	row = product.ProductDTO{}
	require.NoError(t, json.Unmarshal(env.Data, &row))
	assert.Nil(t, row.UnitConversion)

	rec, _ = doJSON(t, h, http.MethodPut, "/api/v1/products/P1/visibility", map[string]any{"hidden": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/weeks/2024/23", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeWeek(t, env).Orders[0].Needs, "P1")

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/products/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
