package weeks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/orderplanner/internal/ingest"
	"github.com/angelmondragon/orderplanner/internal/planning"
	product "github.com/angelmondragon/orderplanner/internal/products"
	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/angelmondragon/orderplanner/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// June 2024: week 23 runs Mon 06-03 to Sun 06-09, deliveries on 06-06, 06-08 and 06-11.
var week23 = planning.WeekKey{Year: 2024, Week: 23}

type testEnv struct {
	conn     *gorm.DB
	repo     *Repository
	products *product.Repository
	svc      Service
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrate(conn))
	return conn
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	conn := openTestDB(t)
	parser, err := ingest.NewParser(config.ImportConfig{
		HeaderRows:            1,
		ReferenceColumn:       "A",
		NameColumn:            "B",
		StockUnitColumn:       "C",
		DestinationCodeColumn: "D",
		ConsumptionColumn:     "E",
	})
	require.NoError(t, err)

	env := &testEnv{
		conn:     conn,
		repo:     NewRepository(conn),
		products: product.NewRepository(conn),
	}
	env.svc, err = NewService(ServiceParams{
		Repository: env.repo,
		Products:   env.products,
		DB:         db.FromGorm(conn),
		Parser:     parser,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) addProduct(t *testing.T, reference string, ratio float64) *models.Product {
	t.Helper()
	row, err := e.products.CreateProduct(context.Background(), &models.Product{
		Reference:          reference,
		Name:               "Product " + reference,
		StockUnit:          "kg",
		ConsumptionPer1000: ratio,
	})
	require.NoError(t, err)
	return row
}

func ptr(v float64) *float64 { return &v }
