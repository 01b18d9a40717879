package weeks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/orderplanner/internal/ingest"
	"github.com/angelmondragon/orderplanner/internal/planning"
	product "github.com/angelmondragon/orderplanner/internal/products"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const defaultOpenWeeksAhead = 8

// Recompute triggers, used as metric labels.
const (
	TriggerInit     = "init"
	TriggerManual   = "manual"
	TriggerForecast = "forecast"
	TriggerStock    = "stock"
	TriggerOrdered  = "ordered"
	TriggerImport   = "import"
	TriggerCatalog  = "catalog"
)

// Service manages the week/order aggregate. Every mutation recomputes the
// needs of the week before returning.
type Service interface {
	EnsureWeek(ctx context.Context, key planning.WeekKey) (*WeekDTO, error)
	GetWeek(ctx context.Context, key planning.WeekKey) (*WeekDTO, error)
	FindWeek(ctx context.Context, key planning.WeekKey) (*WeekDTO, error)
	Plan(ctx context.Context, key planning.WeekKey) (*PlanDTO, error)
	SetSalesForecast(ctx context.Context, key planning.WeekKey, date string, value float64) (*WeekDTO, error)
	SetSalesForecastBatch(ctx context.Context, key planning.WeekKey, values map[string]float64) (*WeekDTO, error)
	SetRealStock(ctx context.Context, key planning.WeekKey, orderNumber int, reference string, value *float64) (*WeekDTO, error)
	SetOrderedQuantity(ctx context.Context, key planning.WeekKey, orderNumber int, reference string, value float64) (*WeekDTO, error)
	ImportSpreadsheet(ctx context.Context, key planning.WeekKey, r io.Reader, format ingest.Format) (*ImportResult, error)
	ImportConsumption(ctx context.Context, key planning.WeekKey, records []ingest.Record) (*ImportResult, error)
	Recompute(ctx context.Context, key planning.WeekKey) (*WeekDTO, error)
	ProductsChanged(ctx context.Context) error
}

// ServiceParams configure the week service.
type ServiceParams struct {
	Repository     *Repository
	Products       *product.Repository
	DB             *db.Client
	Locker         WeekLocker
	Parser         *ingest.Parser
	Metrics        *metrics.PlanningMetrics
	Logger         *logger.Logger
	OpenWeeksAhead int
	Now            func() time.Time
}

type service struct {
	repo           *Repository
	products       *product.Repository
	dbClient       *db.Client
	locker         WeekLocker
	parser         *ingest.Parser
	metrics        *metrics.PlanningMetrics
	logg           *logger.Logger
	openWeeksAhead int
	now            func() time.Time
}

// NewService builds the week service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("week repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Parser == nil {
		return nil, fmt.Errorf("import parser required")
	}
	svc := &service{
		repo:           params.Repository,
		products:       params.Products,
		dbClient:       params.DB,
		locker:         params.Locker,
		parser:         params.Parser,
		metrics:        params.Metrics,
		logg:           params.Logger,
		openWeeksAhead: params.OpenWeeksAhead,
		now:            params.Now,
	}
	if svc.locker == nil {
		svc.locker = NewLocalLocker()
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.openWeeksAhead <= 0 {
		svc.openWeeksAhead = defaultOpenWeeksAhead
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// EnsureWeek returns the week, creating it and its orders on first access.
func (s *service) EnsureWeek(ctx context.Context, key planning.WeekKey) (*WeekDTO, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	week, err := s.repo.FindWeek(ctx, key.Year, key.Week)
	if err == nil {
		orders, err := s.repo.ListOrders(ctx, week.ID)
		if err != nil {
			return nil, storeError(err, "list orders")
		}
		if len(orders) > 0 {
			return NewWeekDTO(week, orders), nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeError(err, "find week")
	}
	return s.mutate(ctx, key, TriggerInit, nil)
}

func (s *service) GetWeek(ctx context.Context, key planning.WeekKey) (*WeekDTO, error) {
	return s.EnsureWeek(ctx, key)
}

// FindWeek returns the week without creating it.
func (s *service) FindWeek(ctx context.Context, key planning.WeekKey) (*WeekDTO, error) {
	week, orders, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return NewWeekDTO(week, orders), nil
}

// Plan returns the calculator breakdown of an existing week without persisting it.
func (s *service) Plan(ctx context.Context, key planning.WeekKey) (*PlanDTO, error) {
	week, err := s.findWeek(ctx, key)
	if err != nil {
		return nil, err
	}

	var (
		catalog []models.Product
		orders  []models.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.products.ListProducts(gctx)
		catalog = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.ListOrders(gctx, week.ID)
		orders = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(err, "load planning inputs")
	}

	result := planning.Calculate(planningWeek(week), product.PlanningProducts(catalog), planningOrders(orders))
	return &PlanDTO{Year: key.Year, Week: key.Week, Orders: result.Orders}, nil
}

func (s *service) SetSalesForecast(ctx context.Context, key planning.WeekKey, date string, value float64) (*WeekDTO, error) {
	return s.SetSalesForecastBatch(ctx, key, map[string]float64{date: value})
}

// SetSalesForecastBatch stores several forecast days and recomputes once.
func (s *service) SetSalesForecastBatch(ctx context.Context, key planning.WeekKey, values map[string]float64) (*WeekDTO, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one forecast value is required")
	}
	updates := make(map[string]*float64, len(values))
	for raw, value := range values {
		date, err := validateForecastDate(key, raw)
		if err != nil {
			return nil, err
		}
		if err := validateQuantity("sales forecast", value); err != nil {
			return nil, err
		}
		v := value
		updates[planning.DateKey(date)] = &v
	}

	return s.mutate(ctx, key, TriggerForecast, func(ctx context.Context, tx *gorm.DB, week *models.Week) error {
		return storeError(
			s.repo.WithTx(tx).UpdateWeekField(ctx, week.ID, models.WeekFieldSalesForecast, updates),
			"update sales forecast",
		)
	})
}

// SetRealStock records the counted stock of a product before an order. A nil
// value removes the count so the order falls back to carryover.
func (s *service) SetRealStock(ctx context.Context, key planning.WeekKey, orderNumber int, reference string, value *float64) (*WeekDTO, error) {
	if value != nil {
		if err := validateQuantity("real stock", *value); err != nil {
			return nil, err
		}
	}
	return s.setOrderValue(ctx, key, TriggerStock, orderNumber, models.OrderFieldRealStock, reference, value)
}

func (s *service) SetOrderedQuantity(ctx context.Context, key planning.WeekKey, orderNumber int, reference string, value float64) (*WeekDTO, error) {
	if err := validateQuantity("ordered quantity", value); err != nil {
		return nil, err
	}
	return s.setOrderValue(ctx, key, TriggerOrdered, orderNumber, models.OrderFieldOrderedQuantities, reference, &value)
}

func (s *service) setOrderValue(ctx context.Context, key planning.WeekKey, trigger string, orderNumber int, field models.OrderField, reference string, value *float64) (*WeekDTO, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if orderNumber < 1 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order number %d must be >= 1", orderNumber)
	}
	if _, err := s.products.FindByReference(ctx, reference); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", reference)
		}
		return nil, storeError(err, "load product")
	}

	ctx = s.logg.WithReference(ctx, reference)
	return s.mutate(ctx, key, trigger, func(ctx context.Context, tx *gorm.DB, week *models.Week) error {
		err := s.repo.WithTx(tx).UpdateOrderField(ctx, week.ID, orderNumber, field, reference, value)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %d not found in week %s", orderNumber, key)
		}
		return storeError(err, "update order")
	})
}

// ImportSpreadsheet parses a consumption export and imports it into the week.
func (s *service) ImportSpreadsheet(ctx context.Context, key planning.WeekKey, r io.Reader, format ingest.Format) (*ImportResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	records, report, err := s.parser.Parse(ctx, r, format)
	if err != nil {
		return nil, err
	}
	s.metrics.AddImportRows(report.Imported, len(report.Skipped))
	for _, warning := range report.Warnings {
		s.logg.Warn(s.logg.WithWeek(ctx, key.Year, key.Week), "import: "+warning)
	}

	result, err := s.ImportConsumption(ctx, key, records)
	if err != nil {
		return nil, err
	}
	result.Report = &report
	return result, nil
}

// ImportConsumption upserts the records into the catalog, replaces the week's
// consumption snapshot and recomputes once.
func (s *service) ImportConsumption(ctx context.Context, key planning.WeekKey, records []ingest.Record) (*ImportResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no product rows to import")
	}

	rows := make([]models.Product, 0, len(records))
	consumption := make(map[string]float64, len(records))
	for _, rec := range records {
		reference := strings.TrimSpace(rec.Reference)
		if reference == "" {
			continue
		}
		ratio := planning.Sanitize(rec.ConsumptionPer1000)
		if ratio < 0 {
			ratio = 0
		}
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			name = reference
		}
		rows = append(rows, models.Product{
			Reference:          reference,
			Name:               name,
			StockUnit:          strings.TrimSpace(rec.StockUnit),
			DestinationCode:    strings.TrimSpace(rec.DestinationCode),
			ConsumptionPer1000: ratio,
		})
		consumption[reference] = ratio
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no product rows to import")
	}

	week, err := s.mutate(ctx, key, TriggerImport, func(ctx context.Context, tx *gorm.DB, week *models.Week) error {
		if err := s.products.WithTx(tx).UpsertFromImport(ctx, rows); err != nil {
			return storeError(err, "import products")
		}
		return storeError(
			s.repo.WithTx(tx).ReplaceWeekField(ctx, week.ID, models.WeekFieldConsumptionData, consumption),
			"import consumption",
		)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"year":     key.Year,
		"week":     key.Week,
		"products": len(rows),
	}), "consumption imported")

	result := &ImportResult{Products: len(rows), Week: week}
	// imported ratios also feed open weeks without their own snapshot
	if err := s.ProductsChanged(ctx); err != nil {
		for _, weekErr := range multierr.Errors(err) {
			result.Warnings = append(result.Warnings, weekErr.Error())
		}
		s.logg.Warn(s.logg.WithField(ctx, "failed_weeks", len(result.Warnings)), "open weeks not refreshed after import: "+err.Error())
	}
	return result, nil
}

// Recompute refreshes the persisted needs of the week.
func (s *service) Recompute(ctx context.Context, key planning.WeekKey) (*WeekDTO, error) {
	return s.mutate(ctx, key, TriggerManual, nil)
}

// ProductsChanged recomputes the open weeks: the current ISO week and the
// existing weeks after it, up to the configured horizon.
func (s *service) ProductsChanged(ctx context.Context) error {
	current := planning.CurrentWeek(s.now())
	rows, err := s.repo.ListWeeksFrom(ctx, current, s.openWeeksAhead)
	if err != nil {
		return storeError(err, "list open weeks")
	}

	var errs error
	for _, row := range rows {
		key := planning.WeekKey{Year: row.Year, Week: row.WeekNumber}
		if _, err := s.mutate(ctx, key, TriggerCatalog, nil); err != nil {
			s.logg.Error(s.logg.WithWeek(ctx, key.Year, key.Week), "recompute after catalog change failed", err)
			errs = multierr.Append(errs, fmt.Errorf("week %s: %w", key, err))
		}
	}
	return errs
}

// mutate runs lock, ensure, apply, recompute and unlock for one week.
// apply may be nil for a plain recompute. apply and the needs write share one
// transaction so an edit is never committed with stale needs.
func (s *service) mutate(ctx context.Context, key planning.WeekKey, trigger string, apply func(context.Context, *gorm.DB, *models.Week) error) (dto *WeekDTO, err error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	ctx = s.logg.WithWeek(ctx, key.Year, key.Week)

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	defer func() { s.metrics.ObserveRecompute(trigger, time.Since(start), err) }()

	written := 0
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		week, err := s.ensure(ctx, repo, key)
		if err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, week); err != nil {
				return err
			}
		}
		dto, written, err = s.recompute(ctx, repo, s.products.WithTx(tx), key)
		return err
	})
	if err != nil {
		return nil, storeError(err, "commit week")
	}
	s.metrics.AddNeeds(written)
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"trigger": trigger, "needs_written": written}), "week recomputed")
	return dto, nil
}

// ensure gets or creates the week row and its orders. Callers hold the week lock.
func (s *service) ensure(ctx context.Context, repo *Repository, key planning.WeekKey) (*models.Week, error) {
	week, err := repo.FindWeek(ctx, key.Year, key.Week)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		week, err = repo.CreateWeekIfMissing(ctx, key.Year, key.Week)
	}
	if err != nil {
		return nil, storeError(err, "ensure week")
	}

	orders, err := repo.ListOrders(ctx, week.ID)
	if err != nil {
		return nil, storeError(err, "list orders")
	}
	if len(orders) == 0 {
		if err := repo.CreateOrdersIfMissing(ctx, week.ID, planning.DeliveryDates(key.Year, key.Week)); err != nil {
			return nil, storeError(err, "create orders")
		}
		s.logg.Info(ctx, "week initialized")
	}
	return week, nil
}

// recompute reloads the week, derives the needs and writes the orders whose
// needs changed. Only the needs column is written. The repositories are bound
// to the mutation transaction, so the inputs are read one after the other.
func (s *service) recompute(ctx context.Context, repo *Repository, products *product.Repository, key planning.WeekKey) (*WeekDTO, int, error) {
	week, err := repo.FindWeek(ctx, key.Year, key.Week)
	if err != nil {
		return nil, 0, storeError(err, "reload week")
	}
	catalog, err := products.ListProducts(ctx)
	if err != nil {
		return nil, 0, storeError(err, "list products")
	}
	orders, err := repo.ListOrders(ctx, week.ID)
	if err != nil {
		return nil, 0, storeError(err, "list orders")
	}

	result := planning.Calculate(planningWeek(week), product.PlanningProducts(catalog), planningOrders(orders))
	needsByOrder := result.NeedsByOrder()

	written := 0
	for i := range orders {
		needs := needsByOrder[orders[i].OrderNumber]
		if sameQuantities(orders[i].Needs.Data(), needs) {
			continue
		}
		if err := repo.SaveNeeds(ctx, orders[i].ID, needs); err != nil {
			return nil, 0, storeError(err, "save needs")
		}
		orders[i].Needs = models.NewQuantities(needs)
		written += len(needs)
	}
	return NewWeekDTO(week, orders), written, nil
}

// load reads an existing week and its orders.
func (s *service) load(ctx context.Context, key planning.WeekKey) (*models.Week, []models.Order, error) {
	week, err := s.findWeek(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.repo.ListOrders(ctx, week.ID)
	if err != nil {
		return nil, nil, storeError(err, "list orders")
	}
	return week, orders, nil
}

func (s *service) findWeek(ctx context.Context, key planning.WeekKey) (*models.Week, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	week, err := s.repo.FindWeek(ctx, key.Year, key.Week)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "week %s not found", key)
		}
		return nil, storeError(err, "find week")
	}
	return week, nil
}

// validateForecastDate accepts days from the week's Monday through its last delivery.
func validateForecastDate(key planning.WeekKey, raw string) (time.Time, error) {
	date, err := planning.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	first := key.Monday()
	last := first.AddDate(0, 0, 6)
	if deliveries := planning.DeliveryDates(key.Year, key.Week); len(deliveries) > 0 && deliveries[len(deliveries)-1].After(last) {
		last = deliveries[len(deliveries)-1]
	}
	if date.Before(first) || date.After(last) {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation,
			"date %s is outside week %s (%s..%s)", planning.DateKey(date), key, planning.DateKey(first), planning.DateKey(last))
	}
	return date, nil
}

func validateQuantity(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a finite number", field)
	}
	if value < 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be >= 0", field)
	}
	return nil
}

// storeError keeps typed and context errors and maps the rest onto error codes.
func storeError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
}

func sameQuantities(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}
