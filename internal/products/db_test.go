package product

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/angelmondragon/orderplanner/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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

func mustCreateProduct(t *testing.T, repo *Repository, reference, name string, ratio float64) *models.Product {
	t.Helper()
	product, err := repo.CreateProduct(context.Background(), &models.Product{
		Reference:          reference,
		Name:               name,
		StockUnit:          "kg",
		ConsumptionPer1000: ratio,
	})
	require.NoError(t, err)
	return product
}
