// Package tabular bridges generic tabular data onto the keypack wire.
//
// A table crosses the wire as an array of row maps; a table set as an array
// of tables. Column names go through the key-intern table, so a table with
// many rows carries each column name only once. For producers that do not
// know the row count upfront, the row-stream form frames rows with
// BEGIN_ARRAY/END.
package tabular

import (
	"fmt"
	"sort"

	"github.com/arloliu/keypack/bind"
	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/stream"
)

// Row is one table row: column name to cell value. Absent columns and nil
// cells are both permitted; nil cells cross the wire as nil tokens.
type Row = map[string]any

// Table is a generic tabular payload with named columns.
type Table struct {
	// Columns lists the column names in declared order. It may be left
	// empty on encode, in which case the sorted union of row keys is used.
	Columns []string

	// Rows holds the row data. A row need not contain every column.
	Rows []Row
}

// columnOrder returns the declared columns followed by any extra row keys in
// sorted order.
func (t *Table) columnOrder() []string {
	declared := make(map[string]bool, len(t.Columns))
	order := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if !declared[col] {
			declared[col] = true
			order = append(order, col)
		}
	}

	extras := make(map[string]bool)
	for _, row := range t.Rows {
		for col := range row {
			if !declared[col] && !extras[col] {
				extras[col] = true
				order = append(order, col)
			}
		}
	}
	if len(extras) > 0 {
		sort.Strings(order[len(order)-len(extras):])
	}

	return order
}

// EncodeTable writes a table as a counted array of row maps. Cell values are
// encoded dynamically; column names go through the encoder's key policy.
func EncodeTable(enc *bind.Encoder, t *Table) error {
	w := enc.Writer()
	if err := w.WriteArrayHeader(len(t.Rows)); err != nil {
		return err
	}

	order := t.columnOrder()
	for _, row := range t.Rows {
		if err := encodeRow(enc, order, row); err != nil {
			return err
		}
	}

	return nil
}

func encodeRow(enc *bind.Encoder, order []string, row Row) error {
	w := enc.Writer()

	count := 0
	for _, col := range order {
		if _, present := row[col]; present {
			count++
		}
	}
	if err := w.WriteMapHeader(count); err != nil {
		return err
	}

	for _, col := range order {
		cell, present := row[col]
		if !present {
			continue
		}
		if err := enc.WriteKey(col); err != nil {
			return err
		}
		if err := enc.Encode(cell); err != nil {
			return err
		}
	}

	return nil
}

// DecodeTable reads a table from either a counted or an unbounded array of
// row maps. The column list is reconstructed as the union of row keys in
// first-seen order.
func DecodeTable(dec *bind.Decoder) (*Table, error) {
	r := dec.Reader()

	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, err
	}

	table := &Table{}
	seen := make(map[string]bool)

	appendRow := func() error {
		row, cols, err := decodeRow(dec)
		if err != nil {
			return err
		}
		for _, col := range cols {
			if !seen[col] {
				seen[col] = true
				table.Columns = append(table.Columns, col)
			}
		}
		table.Rows = append(table.Rows, row)

		return nil
	}

	if n >= 0 {
		table.Rows = make([]Row, 0, n)
		for i := 0; i < n; i++ {
			if err := appendRow(); err != nil {
				return nil, err
			}
		}

		return table, nil
	}

	for {
		if err := drainCommands(r); err != nil {
			return nil, err
		}
		end, err := r.IsEnd()
		if err != nil {
			return nil, err
		}
		if end {
			if err := r.ReadEnd(); err != nil {
				return nil, err
			}

			return table, nil
		}
		if err := appendRow(); err != nil {
			return nil, err
		}
	}
}

// drainCommands applies CLEAR commands standing between rows.
func drainCommands(r *stream.Reader) error {
	for {
		kind, err := r.PeekKind()
		if err != nil {
			return err
		}
		if kind != format.KindCommand {
			return nil
		}
		if err := r.ReadCommand(); err != nil {
			return err
		}
	}
}

// decodeRow reads one row map, counted or unbounded, returning the cells
// and the column names in wire order.
func decodeRow(dec *bind.Decoder) (Row, []string, error) {
	r := dec.Reader()
	if err := drainCommands(r); err != nil {
		return nil, nil, err
	}

	kind, err := r.PeekKind()
	if err != nil {
		return nil, nil, err
	}
	if kind != format.KindMap {
		return nil, nil, fmt.Errorf("row is %s, not map: %w", kind, errs.ErrTypeMismatch)
	}

	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, nil, err
	}

	row := make(Row)
	var cols []string

	readCell := func() error {
		col, err := r.ReadKey()
		if err != nil {
			return err
		}
		value, err := dec.ReadAny()
		if err != nil {
			return err
		}
		row[col] = value
		cols = append(cols, col)

		return nil
	}

	if n >= 0 {
		for i := 0; i < n; i++ {
			if err := readCell(); err != nil {
				return nil, nil, err
			}
		}

		return row, cols, nil
	}

	for {
		end, err := r.IsEnd()
		if err != nil {
			return nil, nil, err
		}
		if end {
			if err := r.ReadEnd(); err != nil {
				return nil, nil, err
			}

			return row, cols, nil
		}
		if err := readCell(); err != nil {
			return nil, nil, err
		}
	}
}

// EncodeTableSet writes a set of tables as a counted array.
func EncodeTableSet(enc *bind.Encoder, tables []*Table) error {
	if err := enc.Writer().WriteArrayHeader(len(tables)); err != nil {
		return err
	}
	for _, t := range tables {
		if err := EncodeTable(enc, t); err != nil {
			return err
		}
	}

	return nil
}

// DecodeTableSet reads a counted array of tables.
func DecodeTableSet(dec *bind.Decoder) ([]*Table, error) {
	n, err := dec.Reader().ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("unbounded table set: %w", errs.ErrInvalidNesting)
	}

	tables := make([]*Table, n)
	for i := range tables {
		tables[i], err = DecodeTable(dec)
		if err != nil {
			return nil, err
		}
	}

	return tables, nil
}
