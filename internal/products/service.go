package product

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"gorm.io/gorm"
)

// Service exposes catalog management operations.
type Service interface {
	ListProducts(ctx context.Context, filter ListFilter) ([]ProductDTO, error)
	GetProduct(ctx context.Context, reference string) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, reference string, input UpdateProductInput) (*ProductDTO, error)
	SetVisibility(ctx context.Context, reference string, hidden bool) (*ProductDTO, error)
	SetUnitConversion(ctx context.Context, reference string, input *UnitConversionInput) (*ProductDTO, error)
}

// ListFilter narrows ListProducts. Query matches name or reference ignoring case and accents.
type ListFilter struct {
	Query           string
	DestinationCode string
	IncludeHidden   bool
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name               *string
	StockUnit          *string
	DestinationCode    *string
	ConsumptionPer1000 *float64
	IsHidden           *bool
}

// UnitConversionInput is the pack rule to store. A nil input clears it.
type UnitConversionInput struct {
	NumberOfPacks float64
	UnitsPerPack  float64
	Unit          string
}

// ChangeNotifier is told when a planning input of the catalog changed.
type ChangeNotifier interface {
	ProductsChanged(ctx context.Context) error
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	notifier ChangeNotifier
	logg     *logger.Logger
}

// NewService constructs a product service instance. notifier may be nil.
func NewService(repo *Repository, dbClient *db.Client, notifier ChangeNotifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, dbClient: dbClient, notifier: notifier, logg: logg}, nil
}

func (s *service) ListProducts(ctx context.Context, filter ListFilter) ([]ProductDTO, error) {
	rows, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	rows = filterProducts(rows, filter)

	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewProductDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) GetProduct(ctx context.Context, reference string) (*ProductDTO, error) {
	product, err := s.load(ctx, s.repo, reference)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

func (s *service) UpdateProduct(ctx context.Context, reference string, input UpdateProductInput) (*ProductDTO, error) {
	if input.ConsumptionPer1000 != nil {
		if err := validateQuantity("consumption_per_1000", *input.ConsumptionPer1000); err != nil {
			return nil, err
		}
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	}

	return s.mutate(ctx, reference, func(product *models.Product) bool {
		changed := false
		if input.Name != nil {
			product.Name = strings.TrimSpace(*input.Name)
		}
		if input.StockUnit != nil {
			product.StockUnit = strings.TrimSpace(*input.StockUnit)
		}
		if input.DestinationCode != nil {
			product.DestinationCode = strings.TrimSpace(*input.DestinationCode)
		}
		if input.ConsumptionPer1000 != nil && *input.ConsumptionPer1000 != product.ConsumptionPer1000 {
			product.ConsumptionPer1000 = *input.ConsumptionPer1000
			changed = true
		}
		if input.IsHidden != nil && *input.IsHidden != product.IsHidden {
			product.IsHidden = *input.IsHidden
			changed = true
		}
		return changed
	})
}

func (s *service) SetVisibility(ctx context.Context, reference string, hidden bool) (*ProductDTO, error) {
	return s.UpdateProduct(ctx, reference, UpdateProductInput{IsHidden: &hidden})
}

func (s *service) SetUnitConversion(ctx context.Context, reference string, input *UnitConversionInput) (*ProductDTO, error) {
	if input != nil {
		if err := validateQuantity("number_of_packs", input.NumberOfPacks); err != nil {
			return nil, err
		}
		if err := validateQuantity("units_per_pack", input.UnitsPerPack); err != nil {
			return nil, err
		}
	}

	return s.mutate(ctx, reference, func(product *models.Product) bool {
		if input == nil {
			product.ClearUnitConversion()
			return true
		}
		packs, units := input.NumberOfPacks, input.UnitsPerPack
		product.ConversionNumberOfPacks = &packs
		product.ConversionUnitsPerPack = &units
		product.ConversionUnit = nil
		if unit := strings.TrimSpace(input.Unit); unit != "" {
			product.ConversionUnit = &unit
		}
		return true
	})
}

// mutate loads the product inside a transaction, applies fn and saves it.
// When fn reports a planning-relevant change the notifier is invoked after commit.
func (s *service) mutate(ctx context.Context, reference string, fn func(*models.Product) bool) (*ProductDTO, error) {
	var (
		updated *models.Product
		changed bool
	)
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := s.load(ctx, txRepo, reference)
		if err != nil {
			return err
		}
		changed = fn(product)
		if updated, err = txRepo.UpdateProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
		}
		return nil
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}

	if changed && s.notifier != nil {
		if err := s.notifier.ProductsChanged(ctx); err != nil {
			s.logg.Error(s.logg.WithReference(ctx, reference), "recompute after product change failed", err)
			return nil, err
		}
	}
	return NewProductDTO(updated), nil
}

func (s *service) load(ctx context.Context, repo *Repository, reference string) (*models.Product, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	product, err := repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", reference)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
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
