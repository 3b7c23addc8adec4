package tabular

import (
	"sort"

	"github.com/arloliu/keypack/bind"
	"github.com/arloliu/keypack/internal/options"
)

// StreamWriter emits rows one at a time inside a BEGIN_ARRAY/END frame, for
// producers that do not know the row count upfront. Column names go through
// the encoder's key policy, so long streams still carry each name once.
type StreamWriter struct {
	enc        *bind.Encoder
	clearEvery int
	rows       int
	open       bool
}

// StreamWriterOption configures a StreamWriter.
type StreamWriterOption = options.Option[*StreamWriter]

// WithClearEvery makes the writer emit CLEAR_ALL after every n rows,
// bounding symbol-table growth on unbounded streams. Zero (the default)
// never clears.
func WithClearEvery(n int) StreamWriterOption {
	return options.NoError(func(sw *StreamWriter) {
		sw.clearEvery = n
	})
}

// NewStreamWriter creates a StreamWriter over an object-binding encoder.
func NewStreamWriter(enc *bind.Encoder, opts ...StreamWriterOption) *StreamWriter {
	sw := &StreamWriter{enc: enc}
	_ = options.Apply(sw, opts...)

	return sw
}

// Begin opens the unbounded row array.
func (sw *StreamWriter) Begin() error {
	if err := sw.enc.Writer().BeginArray(); err != nil {
		return err
	}
	sw.open = true

	return nil
}

// WriteRow emits one row map. Cells are encoded dynamically; keys in sorted
// order.
func (sw *StreamWriter) WriteRow(row Row) error {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if err := encodeRow(sw.enc, cols, row); err != nil {
		return err
	}

	sw.rows++
	if sw.clearEvery > 0 && sw.rows%sw.clearEvery == 0 {
		return sw.enc.Writer().ClearAll()
	}

	return nil
}

// End closes the row array.
func (sw *StreamWriter) End() error {
	sw.open = false
	return sw.enc.Writer().WriteEnd()
}

// StreamReader consumes a row array in either its counted or its unbounded
// form, one row per Next call, in the bufio.Scanner style.
type StreamReader struct {
	dec       *bind.Decoder
	remaining int // rows left in a counted array; -1 while consuming unbounded
	started   bool
	row       Row
	err       error
}

// NewStreamReader creates a StreamReader over an object-binding decoder.
func NewStreamReader(dec *bind.Decoder) *StreamReader {
	return &StreamReader{dec: dec}
}

// Next advances to the next row. It returns false at the end of the row
// array or on error; Err distinguishes the two.
func (sr *StreamReader) Next() bool {
	if sr.err != nil {
		return false
	}

	if !sr.started {
		n, err := sr.dec.Reader().ReadArrayHeader()
		if err != nil {
			sr.err = err
			return false
		}
		sr.remaining = n
		sr.started = true
	}

	if sr.remaining == 0 {
		return false
	}
	if err := drainCommands(sr.dec.Reader()); err != nil {
		sr.err = err
		return false
	}
	if sr.remaining < 0 {
		end, err := sr.dec.Reader().IsEnd()
		if err != nil {
			sr.err = err
			return false
		}
		if end {
			sr.err = sr.dec.Reader().ReadEnd()
			sr.remaining = 0

			return false
		}
	}

	row, _, err := decodeRow(sr.dec)
	if err != nil {
		sr.err = err
		return false
	}
	sr.row = row
	if sr.remaining > 0 {
		sr.remaining--
	}

	return true
}

// Row returns the row read by the last successful Next.
func (sr *StreamReader) Row() Row {
	return sr.row
}

// Err returns the first error encountered, if any.
func (sr *StreamReader) Err() error {
	return sr.err
}
