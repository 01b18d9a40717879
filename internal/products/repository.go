package product

import (
	"context"

	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const importBatchSize = 200

// Repository persists the product catalog.
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

// ListProducts returns the catalog ordered by reference, hidden products included.
func (r *Repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Order("reference ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListVisibleProducts returns the products that take part in planning.
func (r *Repository) ListVisibleProducts(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("is_hidden = ?", false).
		Order("reference ASC").
		Find(&rows).
		Error
	return rows, err
}

// FindByReference loads a product by its unique reference.
func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct saves every column of an existing product row.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpsertFromImport inserts new references and refreshes the imported columns
// of existing ones. Visibility and unit conversion are left untouched.
func (r *Repository) UpsertFromImport(ctx context.Context, rows []models.Product) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reference"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"stock_unit",
				"destination_code",
				"consumption_per_1000",
				"updated_at",
			}),
		}).
		CreateInBatches(&rows, importBatchSize).
		Error
}
