// Package dataset loads the HR fact spreadsheet into an in-memory table.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column types, named after the DuckDB types the table is loaded as.
const (
	TypeBigint  = "BIGINT"
	TypeDouble  = "DOUBLE"
	TypeVarchar = "VARCHAR"
)

// ErrNotFound is returned when the data source does not exist.
var ErrNotFound = errors.New("data source not found")

// Table is a rectangular dataset. Missing cells are nil; other cells hold
// int64, float64 or string according to the column type.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// Column describes one named column of a Table.
type Column struct {
	Name string
	Type string
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Load reads a .xlsx/.xlsm workbook or a .csv file. For workbooks, sheet selects the
// worksheet by name; an empty sheet means the first one.
func Load(path, sheet string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat data source: %w", err)
	}

	var records [][]string
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(path, sheet)
	case ".csv":
		records, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported data source extension %q (supported: .xlsx, .xlsm, .csv)", ext)
	}
	if err != nil {
		return nil, err
	}
	return FromRecords(records)
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	// Raw values: display formats such as "#,##0.00" would turn numbers into text.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// FromRecords builds a Table from string records whose first record is the header.
// Short rows are padded with missing cells; blank cells are missing.
func FromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("data source is empty")
	}

	names := headerNames(records[0])
	body := records[1:]

	// Drop trailing fully blank rows that spreadsheets tend to keep.
	for len(body) > 0 && blankRecord(body[len(body)-1]) {
		body = body[:len(body)-1]
	}

	width := len(names)
	for _, rec := range body {
		if len(rec) > width {
			width = len(rec)
		}
	}
	for len(names) < width {
		names = append(names, uniqueName(fmt.Sprintf("Unnamed: %d", len(names)), names))
	}

	t := &Table{
		Columns: make([]Column, width),
		Rows:    make([][]any, len(body)),
	}
	for i := range t.Columns {
		t.Columns[i] = Column{Name: names[i], Type: inferType(body, i)}
	}
	for r, rec := range body {
		row := make([]any, width)
		for i, c := range t.Columns {
			if i < len(rec) {
				row[i] = convert(rec[i], c.Type)
			}
		}
		t.Rows[r] = row
	}
	return t, nil
}

func headerNames(header []string) []string {
	names := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		names = append(names, uniqueName(h, names))
	}
	return names
}

func uniqueName(name string, taken []string) string {
	used := func(n string) bool {
		for _, t := range taken {
			if t == n {
				return true
			}
		}
		return false
	}
	if !used(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", name, i)
		if !used(candidate) {
			return candidate
		}
	}
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func inferType(body [][]string, col int) string {
	typ := TypeBigint
	present := false
	for _, rec := range body {
		if col >= len(rec) {
			continue
		}
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		present = true
		if typ == TypeBigint {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			typ = TypeDouble
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return TypeVarchar
		}
	}
	if !present {
		return TypeVarchar
	}
	return typ
}

func convert(cell, typ string) any {
	v := strings.TrimSpace(cell)
	if v == "" {
		return nil
	}
	switch typ {
	case TypeBigint:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case TypeDouble:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return v
	}
}

// FormatValue renders a cell the way it is shown to the translator.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
