package ingest

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/orderplanner/pkg/config"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Layout holds zero-based column indexes of the consumption export.
type Layout struct {
	DestinationCode    int
	Reference          int
	Name               int
	StockUnit          int
	ConsumptionPer1000 int
}

// DefaultLayout matches the stock export: E, J, K, L and AO.
var DefaultLayout = Layout{
	DestinationCode:    4,
	Reference:          9,
	Name:               10,
	StockUnit:          11,
	ConsumptionPer1000: 40,
}

type columnSpec struct {
	name   string
	letter string
	target *int
}

// LayoutFromConfig resolves the configured column letters. Empty letters keep the default.
func LayoutFromConfig(cfg config.ImportConfig) (Layout, error) {
	layout := DefaultLayout
	columns := []columnSpec{
		{name: "destination", letter: cfg.DestinationCodeColumn, target: &layout.DestinationCode},
		{name: "reference", letter: cfg.ReferenceColumn, target: &layout.Reference},
		{name: "name", letter: cfg.NameColumn, target: &layout.Name},
		{name: "stock unit", letter: cfg.StockUnitColumn, target: &layout.StockUnit},
		{name: "consumption", letter: cfg.ConsumptionColumn, target: &layout.ConsumptionPer1000},
	}

	for _, col := range columns {
		letter := strings.ToUpper(strings.TrimSpace(col.letter))
		if letter == "" {
			continue
		}
		n, err := excelize.ColumnNameToNumber(letter)
		if err != nil {
			return Layout{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s column %q", col.name, col.letter))
		}
		*col.target = n - 1
	}
	return layout, nil
}
