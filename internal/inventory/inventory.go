// Package inventory records which values each allowed dimension actually takes in the dataset,
// so the query translator can ground its filters.
package inventory

import (
	"bytes"
	"encoding/json"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
)

// UnknownType marks a dimension that is absent from the dataset.
const UnknownType = "unknown"

// Inventory maps each registry dimension to its observed type and values.
// It is built once at startup and never modified.
type Inventory struct {
	dims  []Dimension
	index map[string]int
}

// Dimension is one grounded dimension.
type Dimension struct {
	Name   string   `json:"-"`
	Dtype  string   `json:"dtype"`
	Values []string `json:"values"`
}

// Build derives the inventory for dims from tbl. Dimensions that are not columns of tbl
// are recorded with UnknownType and no values.
func Build(tbl *dataset.Table, dims []string) *Inventory {
	inv := &Inventory{
		dims:  make([]Dimension, 0, len(dims)),
		index: make(map[string]int, len(dims)),
	}
	for _, name := range dims {
		if _, dup := inv.index[name]; dup {
			continue
		}
		inv.index[name] = len(inv.dims)
		inv.dims = append(inv.dims, buildDimension(tbl, name))
	}
	return inv
}

func buildDimension(tbl *dataset.Table, name string) Dimension {
	col := -1
	if tbl != nil {
		col = tbl.ColumnIndex(name)
	}
	if col < 0 {
		return Dimension{Name: name, Dtype: UnknownType, Values: []string{}}
	}

	seen := make(map[string]bool)
	values := []string{}
	for _, row := range tbl.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		v := dataset.FormatValue(row[col])
		if seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return Dimension{Name: name, Dtype: tbl.Columns[col].Type, Values: values}
}

// Dimensions returns the grounded dimensions in registry order.
func (inv *Inventory) Dimensions() []Dimension {
	out := make([]Dimension, len(inv.dims))
	for i, d := range inv.dims {
		out[i] = Dimension{Name: d.Name, Dtype: d.Dtype, Values: append([]string{}, d.Values...)}
	}
	return out
}

// Lookup returns the named dimension.
func (inv *Inventory) Lookup(name string) (Dimension, bool) {
	i, ok := inv.index[name]
	if !ok {
		return Dimension{}, false
	}
	return inv.dims[i], true
}

// Missing lists the dimensions that could not be found in the dataset.
func (inv *Inventory) Missing() []string {
	var names []string
	for _, d := range inv.dims {
		if d.Dtype == UnknownType {
			names = append(names, d.Name)
		}
	}
	return names
}

// MarshalJSON encodes the inventory as an object keyed by dimension name, in registry order.
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range inv.dims {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(d.Name)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(d)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
