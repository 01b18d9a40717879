package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/angelmondragon/orderplanner/pkg/config"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func defaultImportConfig() config.ImportConfig {
	return config.ImportConfig{
		HeaderRows:            1,
		DestinationCodeColumn: "E",
		ReferenceColumn:       "J",
		NameColumn:            "K",
		StockUnitColumn:       "L",
		ConsumptionColumn:     "AO",
	}
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(defaultImportConfig())
	require.NoError(t, err)
	return p
}

func setRow(t *testing.T, f *excelize.File, row int, values map[string]any) {
	t.Helper()
	for col, v := range values {
		cellName, err := excelize.JoinCellName(col, row)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Sheet1", cellName, v))
	}
}

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	setRow(t, f, 1, map[string]any{"E": "Destino", "J": "Referencia", "K": "Nombre", "L": "Unidad", "AO": "Consumo x 1000"})
	setRow(t, f, 2, map[string]any{"E": "COC", "J": "REF-1", "K": "Patatas", "L": "kg", "AO": "2,5"})
	setRow(t, f, 3, map[string]any{"E": "BAR", "J": "", "K": "Sin referencia", "L": "ud", "AO": "1"})
	setRow(t, f, 4, map[string]any{"E": "BAR", "J": "REF-2", "K": "Cola", "L": "ud", "AO": 12.75})
	setRow(t, f, 5, map[string]any{"E": "COC", "J": "REF-3", "K": "Sal", "L": "kg", "AO": "n/a"})

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	records, report, err := newTestParser(t).Parse(context.Background(), bytes.NewReader(buildWorkbook(t)), FormatAuto)
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, report.Format)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 3, report.Imported)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkippedRow{Row: 3, Reason: "missing reference"}, report.Skipped[0])
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "row 5")

	require.Len(t, records, 3)
	assert.Equal(t, Record{Reference: "REF-1", Name: "Patatas", StockUnit: "kg", DestinationCode: "COC", ConsumptionPer1000: 2.5}, records[0])
	assert.Equal(t, 12.75, records[1].ConsumptionPer1000)
	assert.Equal(t, 0.0, records[2].ConsumptionPer1000)
}

func TestParseXLSXMissingSheet(t *testing.T) {
	cfg := defaultImportConfig()
	cfg.SheetName = "Consumos"
	p, err := NewParser(cfg)
	require.NoError(t, err)

	_, _, err = p.Parse(context.Background(), bytes.NewReader(buildWorkbook(t)), FormatXLSX)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseSemicolonCSV(t *testing.T) {
	cfg := config.ImportConfig{
		HeaderRows:            1,
		DestinationCodeColumn: "A",
		ReferenceColumn:       "B",
		NameColumn:            "C",
		StockUnitColumn:       "D",
		ConsumptionColumn:     "E",
	}
	p, err := NewParser(cfg)
	require.NoError(t, err)

	input := strings.Join([]string{
		"destino;referencia;nombre;unidad;consumo",
		"COC;REF-1;Patatas;kg;2,5",
		"COC;REF-2;;ud;1.234,5",
		"",
		"BAR;REF-1;Patatas nuevas;kg;-3",
	}, "\n")

	records, report, err := p.Parse(context.Background(), strings.NewReader(input), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, report.Format)
	require.Len(t, records, 2)

	assert.Equal(t, "Patatas nuevas", records[0].Name, "duplicate reference keeps the last row")
	assert.Equal(t, 0.0, records[0].ConsumptionPer1000, "negative consumption is clamped")
	assert.Equal(t, "REF-2", records[1].Name, "empty name falls back to the reference")
	assert.Equal(t, 1234.5, records[1].ConsumptionPer1000)
	assert.Len(t, report.Warnings, 2)
}

func TestParseRejectsUnknownContent(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, _, err := newTestParser(t).Parse(context.Background(), bytes.NewReader(png), FormatAuto)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, _, err = newTestParser(t).Parse(context.Background(), bytes.NewReader(nil), FormatAuto)
	require.Error(t, err)
}

func TestParseHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newTestParser(t).Parse(ctx, bytes.NewReader(buildWorkbook(t)), FormatXLSX)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLayoutFromConfig(t *testing.T) {
	layout, err := LayoutFromConfig(defaultImportConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultLayout, layout)

	layout, err = LayoutFromConfig(config.ImportConfig{ConsumptionColumn: "ap"})
	require.NoError(t, err)
	assert.Equal(t, 41, layout.ConsumptionPer1000)
	assert.Equal(t, DefaultLayout.Reference, layout.Reference)

	_, err = LayoutFromConfig(config.ImportConfig{ReferenceColumn: "1A"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"2,5", 2.5, true},
		{" 3.75 ", 3.75, true},
		{"1.234,5", 1234.5, true},
		{"1 000", 1000, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"-2", -2, true},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}
