package weeks

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/orderplanner/internal/planning"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists weeks and their orders.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindWeek loads a week without its orders. Returns gorm.ErrRecordNotFound when absent.
func (r *Repository) FindWeek(ctx context.Context, year, week int) (*models.Week, error) {
	var row models.Week
	if err := r.db.WithContext(ctx).
		Where("year = ? AND week_number = ?", year, week).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateWeekIfMissing inserts an empty week unless one already exists, then
// returns the stored row. Concurrent callers converge on the same row.
func (r *Repository) CreateWeekIfMissing(ctx context.Context, year, week int) (*models.Week, error) {
	row := models.Week{
		Year:            year,
		WeekNumber:      week,
		SalesForecast:   models.NewQuantities(nil),
		ConsumptionData: models.NewQuantities(nil),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "year"}, {Name: "week_number"}},
			DoNothing: true,
		}).
		Create(&row).Error; err != nil {
		return nil, err
	}
	return r.FindWeek(ctx, year, week)
}

// ListWeeksFrom returns existing weeks at or after from, oldest first.
// limit <= 0 means no limit.
func (r *Repository) ListWeeksFrom(ctx context.Context, from planning.WeekKey, limit int) ([]models.Week, error) {
	query := r.db.WithContext(ctx).
		Where("year > ? OR (year = ? AND week_number >= ?)", from.Year, from.Year, from.Week).
		Order("year ASC").
		Order("week_number ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Week
	err := query.Find(&rows).Error
	return rows, err
}

// ListOrders returns the orders of a week by ascending order number.
func (r *Repository) ListOrders(ctx context.Context, weekID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("week_id = ?", weekID).
		Order("order_number ASC").
		Find(&rows).
		Error
	return rows, err
}

// CreateOrdersIfMissing inserts one order per delivery date, numbered from 1.
// Orders that already exist are left untouched.
func (r *Repository) CreateOrdersIfMissing(ctx context.Context, weekID uuid.UUID, deliveryDates []time.Time) error {
	if len(deliveryDates) == 0 {
		return nil
	}
	rows := make([]models.Order, 0, len(deliveryDates))
	for i, date := range deliveryDates {
		rows = append(rows, models.Order{
			WeekID:            weekID,
			OrderNumber:       i + 1,
			DeliveryDate:      date,
			RealStock:         models.NewQuantities(nil),
			Needs:             models.NewQuantities(nil),
			OrderedQuantities: models.NewQuantities(nil),
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "week_id"}, {Name: "order_number"}},
			DoNothing: true,
		}).
		Create(&rows).
		Error
}

// UpdateWeekField merges values into one map column of a week. A nil value
// removes the key. Only that column is written.
func (r *Repository) UpdateWeekField(ctx context.Context, weekID uuid.UUID, field models.WeekField, values map[string]*float64) error {
	column := field.Column()
	if column == "" {
		return fmt.Errorf("unknown week field %q", field)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Week
		if err := forUpdate(tx).Where("id = ?", weekID).First(&row).Error; err != nil {
			return err
		}
		current := row.SalesForecast
		if field == models.WeekFieldConsumptionData {
			current = row.ConsumptionData
		}
		merged := mergeValues(models.QuantityMap(current), values)
		return tx.Model(&models.Week{}).
			Where("id = ?", weekID).
			Update(column, models.NewQuantities(merged)).
			Error
	})
}

// ReplaceWeekField overwrites one map column of a week.
func (r *Repository) ReplaceWeekField(ctx context.Context, weekID uuid.UUID, field models.WeekField, values map[string]float64) error {
	column := field.Column()
	if column == "" {
		return fmt.Errorf("unknown week field %q", field)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Week{}).
		Where("id = ?", weekID).
		Update(column, models.NewQuantities(values))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateOrderField sets (or with a nil value removes) one product key of an
// order's map column. Returns gorm.ErrRecordNotFound for an unknown order.
func (r *Repository) UpdateOrderField(ctx context.Context, weekID uuid.UUID, orderNumber int, field models.OrderField, reference string, value *float64) error {
	column := field.Column()
	if column == "" {
		return fmt.Errorf("unknown order field %q", field)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Order
		if err := forUpdate(tx).
			Where("week_id = ? AND order_number = ?", weekID, orderNumber).
			First(&row).Error; err != nil {
			return err
		}
		var current models.Quantities
		switch field {
		case models.OrderFieldRealStock:
			current = row.RealStock
		case models.OrderFieldNeeds:
			current = row.Needs
		default:
			current = row.OrderedQuantities
		}
		merged := mergeValues(models.QuantityMap(current), map[string]*float64{reference: value})
		return tx.Model(&models.Order{}).
			Where("id = ?", row.ID).
			Update(column, models.NewQuantities(merged)).
			Error
	})
}

// SaveNeeds replaces the needs column of an order.
func (r *Repository) SaveNeeds(ctx context.Context, orderID uuid.UUID, needs map[string]float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update(models.OrderFieldNeeds.Column(), models.NewQuantities(needs)).
		Error
}

// forUpdate adds a row lock where the dialect supports one.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if db.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func mergeValues(current map[string]float64, values map[string]*float64) map[string]float64 {
	for key, value := range values {
		if value == nil {
			delete(current, key)
			continue
		}
		current[key] = *value
	}
	return current
}
