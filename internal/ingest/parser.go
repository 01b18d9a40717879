package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/angelmondragon/orderplanner/pkg/config"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// Record is one product line of a consumption export.
type Record struct {
	Reference          string  `json:"reference"`
	Name               string  `json:"name"`
	StockUnit          string  `json:"stock_unit"`
	DestinationCode    string  `json:"destination_code"`
	ConsumptionPer1000 float64 `json:"consumption_per_1000"`
}

// Format selects the decoder. FormatAuto sniffs the content.
type Format string

const (
	FormatAuto Format = ""
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SkippedRow explains why a spreadsheet row produced no record. Row is 1-based.
type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report summarizes a parse.
type Report struct {
	Format   Format       `json:"format"`
	Rows     int          `json:"rows"`
	Imported int          `json:"imported"`
	Skipped  []SkippedRow `json:"skipped,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Parser decodes consumption exports into records.
type Parser struct {
	layout     Layout
	sheet      string
	headerRows int
}

// NewParser builds a parser from the import configuration.
func NewParser(cfg config.ImportConfig) (*Parser, error) {
	layout, err := LayoutFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	headerRows := cfg.HeaderRows
	if headerRows < 0 {
		headerRows = 0
	}
	return &Parser{layout: layout, sheet: strings.TrimSpace(cfg.SheetName), headerRows: headerRows}, nil
}

// Parse reads every data row of r. Rows without a reference are skipped and
// reported; unparseable consumption values count as 0. When a reference
// appears twice the last row wins.
func (p *Parser) Parse(ctx context.Context, r io.Reader, format Format) ([]Record, Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Report{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	if len(data) == 0 {
		return nil, Report{}, pkgerrors.New(pkgerrors.CodeValidation, "empty file")
	}

	if format == FormatAuto {
		if format, err = DetectFormat(data); err != nil {
			return nil, Report{}, err
		}
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = p.readXLSX(data)
	case FormatCSV:
		rows, err = readCSV(data)
	default:
		err = pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported format %q", format)
	}
	if err != nil {
		return nil, Report{}, err
	}

	return p.records(ctx, rows, format)
}

// DetectFormat sniffs whether data is an xlsx workbook or delimited text.
func DetectFormat(data []byte) (Format, error) {
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is(xlsxMIME), mtype.Is("application/zip"):
		return FormatXLSX, nil
	case mtype.Is("text/csv"), mtype.Is("text/plain"):
		return FormatCSV, nil
	}
	return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported file type %s", mtype.String())
}

func (p *Parser) readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open workbook")
	}
	defer f.Close()

	sheet := p.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("read sheet %q", sheet))
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read csv")
	}
	return rows, nil
}

// sniffDelimiter picks ';' when the first line has more semicolons than commas,
// the usual shape of exports that write decimals with a comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func (p *Parser) records(ctx context.Context, rows [][]string, format Format) ([]Record, Report, error) {
	report := Report{Format: format}
	index := map[string]int{}
	records := []Record{}

	for i, row := range rows {
		if i < p.headerRows {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		rowNumber := i + 1
		if isBlank(row) {
			continue
		}
		report.Rows++

		reference := cell(row, p.layout.Reference)
		if reference == "" {
			report.Skipped = append(report.Skipped, SkippedRow{Row: rowNumber, Reason: "missing reference"})
			continue
		}

		rec := Record{
			Reference:       reference,
			Name:            cell(row, p.layout.Name),
			StockUnit:       cell(row, p.layout.StockUnit),
			DestinationCode: cell(row, p.layout.DestinationCode),
		}
		if rec.Name == "" {
			rec.Name = reference
		}

		raw := cell(row, p.layout.ConsumptionPer1000)
		value, ok := ParseNumber(raw)
		switch {
		case !ok && raw != "":
			report.Warnings = append(report.Warnings, fmt.Sprintf("row %d: consumption %q is not a number, using 0", rowNumber, raw))
		case value < 0:
			report.Warnings = append(report.Warnings, fmt.Sprintf("row %d: negative consumption %s, using 0", rowNumber, raw))
			value = 0
		}
		rec.ConsumptionPer1000 = value

		if at, dup := index[reference]; dup {
			report.Warnings = append(report.Warnings, fmt.Sprintf("row %d: duplicate reference %s replaces an earlier row", rowNumber, reference))
			records[at] = rec
			continue
		}
		index[reference] = len(records)
		records = append(records, rec)
	}

	report.Imported = len(records)
	return records, report, nil
}

// ParseNumber reads a decimal that may use a comma separator ("2,5") and
// thousands dots ("1.234,5"). Unparseable or non-finite input yields (0, false).
func ParseNumber(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	if n := strings.Count(s, "."); n > 1 {
		last := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
