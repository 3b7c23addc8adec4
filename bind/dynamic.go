package bind

import (
	"fmt"

	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
)

// ReadAny reads one value with no declared target, resolving by wire kind
// to nil, bool, int64, float64, string, []byte, []any or map[string]any.
// Integers widen to int64 and floats to float64 regardless of their wire
// width.
//
// Unbounded collections are refused with ErrInvalidNesting; streams framed
// with BEGIN/END are consumed through the low-level Reader instead.
func (d *Decoder) ReadAny() (any, error) {
	return d.readAny(0)
}

func (d *Decoder) readAny(depth int) (any, error) {
	if depth > d.r.Limits().MaxDepth {
		return nil, fmt.Errorf("decode depth %d: %w", depth, errs.ErrDepthExceeded)
	}
	if err := d.drainCommands(); err != nil {
		return nil, err
	}

	kind, err := d.r.PeekKind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case format.KindNil:
		return nil, d.r.ReadNil()
	case format.KindBool:
		return d.r.ReadBool()
	case format.KindInt:
		return d.r.ReadInt()
	case format.KindFloat:
		return d.r.ReadFloat64()
	case format.KindString:
		return d.r.ReadString()
	case format.KindKey:
		// An interned key standing in value position reads as its string.
		return d.r.ReadKey()
	case format.KindBinary:
		return d.r.ReadBinary()

	case format.KindArray:
		n, err := d.r.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("unbounded array in dynamic read: %w", errs.ErrInvalidNesting)
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i], err = d.readAny(depth + 1)
			if err != nil {
				return nil, err
			}
		}

		return out, nil

	case format.KindMap:
		n, err := d.r.ReadMapHeader()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("unbounded map in dynamic read: %w", errs.ErrInvalidNesting)
		}
		out := make(map[string]any, n)
		for i := 0; i < n; i++ {
			key, err := d.r.ReadKey()
			if err != nil {
				return nil, err
			}
			out[key], err = d.readAny(depth + 1)
			if err != nil {
				return nil, err
			}
		}

		return out, nil

	case format.KindStruct:
		names, defined, err := d.r.ReadStructHeader()
		if err != nil {
			return nil, err
		}
		if defined {
			// Definition only; the value is the next token.
			return d.readAny(depth)
		}
		out := make(map[string]any, len(names))
		for _, name := range names {
			out[name], err = d.readAny(depth + 1)
			if err != nil {
				return nil, err
			}
		}

		return out, nil

	case format.KindEOF:
		return nil, fmt.Errorf("dynamic read at end of stream: %w", errs.ErrTruncated)
	case format.KindEnd:
		return nil, fmt.Errorf("end token in value position: %w", errs.ErrInvalidNesting)
	default:
		return nil, fmt.Errorf("unreadable token: %w", errs.ErrMalformedToken)
	}
}
