package tablebridge

import (
	"fmt"
)

// DType names the element type of a Series.
type DType string

const (
	DTypeString  DType = "str"
	DTypeInt64   DType = "i64"
	DTypeFloat64 DType = "f64"
	DTypeBool    DType = "bool"
)

// Series is one named, typed column. Use the Strings, Int64s, Float64s and
// Bools constructors; a Series built with no values is empty, never nil, so
// it still arrives in Python as an empty list.
type Series struct {
	name   string
	dtype  DType
	values interface{}
	length int
}

// Strings returns a string Series.
func Strings(name string, values ...string) Series {
	if values == nil {
		values = []string{}
	}
	return Series{name: name, dtype: DTypeString, values: values, length: len(values)}
}

// Int64s returns an integer Series.
func Int64s(name string, values ...int64) Series {
	if values == nil {
		values = []int64{}
	}
	return Series{name: name, dtype: DTypeInt64, values: values, length: len(values)}
}

// Float64s returns a float Series.
func Float64s(name string, values ...float64) Series {
	if values == nil {
		values = []float64{}
	}
	return Series{name: name, dtype: DTypeFloat64, values: values, length: len(values)}
}

// Bools returns a boolean Series.
func Bools(name string, values ...bool) Series {
	if values == nil {
		values = []bool{}
	}
	return Series{name: name, dtype: DTypeBool, values: values, length: len(values)}
}

func (s Series) Name() string { return s.name }

func (s Series) DType() DType { return s.dtype }

func (s Series) Len() int { return s.length }

// Values returns the backing slice ([]string, []int64, []float64 or []bool).
func (s Series) Values() interface{} { return s.values }

// Table is an in-memory columnar table. All columns have the same length and
// column names are unique; NewTable enforces both.
type Table struct {
	series []Series
	index  map[string]int
	height int
}

// NewTable builds a Table from one or more Series.
func NewTable(series ...Series) (*Table, error) {
	if len(series) == 0 {
		return nil, newError(PhaseTable, "table has no columns", nil)
	}

	t := &Table{
		series: make([]Series, 0, len(series)),
		index:  make(map[string]int, len(series)),
		height: series[0].Len(),
	}
	for _, s := range series {
		if s.name == "" {
			return nil, newError(PhaseTable, "column with empty name", nil)
		}
		if _, dup := t.index[s.name]; dup {
			return nil, newError(PhaseTable, fmt.Sprintf("duplicate column %q", s.name), nil)
		}
		if s.Len() != t.height {
			return nil, newError(PhaseTable, fmt.Sprintf("column %q has %d rows, expected %d", s.name, s.Len(), t.height), nil)
		}
		t.index[s.name] = len(t.series)
		t.series = append(t.series, s)
	}
	return t, nil
}

// Height is the number of rows.
func (t *Table) Height() int { return t.height }

// Width is the number of columns.
func (t *Table) Width() int { return len(t.series) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.series))
	for i, s := range t.series {
		names[i] = s.name
	}
	return names
}

// Column looks up a Series by name.
func (t *Table) Column(name string) (Series, bool) {
	i, ok := t.index[name]
	if !ok {
		return Series{}, false
	}
	return t.series[i], true
}

// String renders the table shape, e.g. "shape: (3, 2) [Date:str Value:i64]".
func (t *Table) String() string {
	s := fmt.Sprintf("shape: (%d, %d) [", t.height, len(t.series))
	for i, c := range t.series {
		if i > 0 {
			s += " "
		}
		s += c.name + ":" + string(c.dtype)
	}
	return s + "]"
}

// wire is the argument form understood by the interpreter host, which
// rebuilds it as a polars or pandas DataFrame, or a dict of lists.
func (t *Table) wire() (map[string]interface{}, error) {
	if t == nil {
		return nil, newError(PhaseMarshal, "nil table", nil)
	}
	columns := make([]string, len(t.series))
	dtypes := make([]string, len(t.series))
	data := make([]interface{}, len(t.series))
	for i, s := range t.series {
		columns[i] = s.name
		dtypes[i] = string(s.dtype)
		data[i] = s.values
	}
	return map[string]interface{}{
		"__table__": true,
		"columns":   columns,
		"dtypes":    dtypes,
		"data":      data,
	}, nil
}
