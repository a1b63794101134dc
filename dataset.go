package sheetsql

import (
	"fmt"
)

// Dataset holds one worksheet's contents as an in-memory table: an ordered
// header row plus typed data rows.
type Dataset struct {
	name    string
	headers header
	rows    []Record
}

// newDataset creates a new dataset.
func newDataset(name string, headers header, rows []Record) *Dataset {
	return &Dataset{
		name:    name,
		headers: headers,
		rows:    rows,
	}
}

// Name returns the worksheet name the dataset was loaded from.
func (d *Dataset) Name() string {
	return d.name
}

// Headers returns the header row.
func (d *Dataset) Headers() []string {
	return d.headers
}

// Rows returns the data rows.
func (d *Dataset) Rows() []Record {
	return d.rows
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// FirstRow returns the first data row, used as the type-inference sample.
func (d *Dataset) FirstRow() (Record, error) {
	if len(d.rows) == 0 {
		return nil, fmt.Errorf("%w: worksheet %s has no data rows", ErrInvalidSchemaInput, d.name)
	}
	return d.rows[0], nil
}

// HasColumn reports whether the dataset carries the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, h := range d.headers {
		if h == name {
			return true
		}
	}
	return false
}

// Subset returns a new dataset restricted to the named columns, in the
// requested order. Unknown column names are an error.
func (d *Dataset) Subset(columns []string) (*Dataset, error) {
	if len(columns) == 0 {
		return d, nil
	}

	indexes := make([]int, 0, len(columns))
	for _, want := range columns {
		found := -1
		for i, h := range d.headers {
			if h == want {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("column %q not found in worksheet %s", want, d.name)
		}
		indexes = append(indexes, found)
	}

	rows := make([]Record, len(d.rows))
	for i, row := range d.rows {
		sub := make(Record, len(indexes))
		for j, idx := range indexes {
			if idx < len(row) {
				sub[j] = row[idx]
			}
		}
		rows[i] = sub
	}
	return newDataset(d.name, newHeader(columns), rows), nil
}

// equal compares datasets. Used by tests.
func (d *Dataset) equal(d2 *Dataset) bool {
	if d.name != d2.name || !d.headers.equal(d2.headers) || len(d.rows) != len(d2.rows) {
		return false
	}
	for i, row := range d.rows {
		if len(row) != len(d2.rows[i]) {
			return false
		}
		for j, cell := range row {
			if cell != d2.rows[i][j] {
				return false
			}
		}
	}
	return true
}
