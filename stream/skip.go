package stream

import (
	"fmt"

	"github.com/arloliu/keypack/encoding"
	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
)

// Skip consumes exactly one logical value of any shape, including its nested
// subtree and unbounded collections up to their matching END.
//
// Skipping never mutates the symbol tables: a skipped SET_KEY or
// DEFINE_STRUCT discards its payload without recording it. A consumer that
// needs the tables intact must fully read those commands instead. USE_KEY
// and USE_STRUCT skip as bare commands (varint only); any values following a
// USE_STRUCT belong to the enclosing structure and are not consumed.
func (r *Reader) Skip() error {
	return r.skipValue(0)
}

func (r *Reader) skipValue(depth int) error {
	if depth > r.limits.MaxDepth {
		return fmt.Errorf("skip depth %d: %w", depth, errs.ErrLimitExceeded)
	}

	marker, err := r.readMarker()
	if err != nil {
		return err
	}

	switch {
	case marker <= format.PosFixintMax:
		return nil
	case marker <= format.FixmapHigh:
		return r.skipPairs(int(marker&format.FixmapMask), depth)
	case marker <= format.FixarrayHigh:
		return r.skipElements(int(marker&format.FixarrayMask), depth)
	case marker <= format.FixstrHigh:
		return r.discard(int(marker & format.FixstrMask))
	case marker >= format.NegFixintLow && marker <= format.NegFixintMax:
		return nil
	}

	switch marker {
	case format.Nil, format.False, format.True:
		return nil
	case format.Int8, format.Uint8:
		return r.discard(1)
	case format.Int16, format.Uint16:
		return r.discard(2)
	case format.Int32, format.Uint32, format.Float32:
		return r.discard(4)
	case format.Int64, format.Uint64, format.Float64:
		return r.discard(8)

	case format.Str8, format.Bin8:
		return r.skipLengthPrefixed(1)
	case format.Str16, format.Bin16:
		return r.skipLengthPrefixed(2)
	case format.Str32, format.Bin32:
		return r.skipLengthPrefixed(4)

	case format.Array16:
		n, err := r.readLength(2)
		if err != nil {
			return err
		}

		return r.skipElements(n, depth)
	case format.Array32:
		n, err := r.readLength(4)
		if err != nil {
			return err
		}

		return r.skipElements(n, depth)
	case format.Map16:
		n, err := r.readLength(2)
		if err != nil {
			return err
		}

		return r.skipPairs(n, depth)
	case format.Map32:
		n, err := r.readLength(4)
		if err != nil {
			return err
		}

		return r.skipPairs(n, depth)

	case format.CmdBeginArray, format.CmdBeginMap:
		return r.skipUnbounded(depth)

	case format.CmdSetKey:
		if err := r.skipVarint(); err != nil {
			return err
		}

		return r.skipValue(depth + 1)
	case format.CmdUseKey, format.CmdUseStruct:
		return r.skipVarint()
	case format.CmdDefineStruct:
		if err := r.skipVarint(); err != nil {
			return err
		}
		if err := r.readFull(r.scratch[:1]); err != nil {
			return err
		}
		count := int(r.scratch[0])
		for i := 0; i < count; i++ {
			if err := r.skipValue(depth + 1); err != nil {
				return err
			}
		}

		return nil
	case format.CmdClearKeys, format.CmdClearStructs, format.CmdClearAll:
		return nil
	case format.CmdEnd:
		return fmt.Errorf("end token in value position: %w", errs.ErrInvalidNesting)
	default:
		return fmt.Errorf("marker 0x%02X: %w", marker, errs.ErrMalformedToken)
	}
}

// skipUnbounded consumes values until the END matching an already consumed
// BEGIN. Map pairs are two values each, so one loop covers both frame kinds.
func (r *Reader) skipUnbounded(depth int) error {
	for {
		end, err := r.IsEnd()
		if err != nil {
			return err
		}
		if end {
			_, err := r.readMarker()
			return err
		}
		if err := r.skipValue(depth + 1); err != nil {
			return err
		}
	}
}

func (r *Reader) skipElements(n, depth int) error {
	for i := 0; i < n; i++ {
		if err := r.skipValue(depth + 1); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) skipPairs(n, depth int) error {
	for i := 0; i < n; i++ {
		if err := r.skipValue(depth + 1); err != nil {
			return err
		}
		if err := r.skipValue(depth + 1); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) skipLengthPrefixed(lengthBytes int) error {
	n, err := r.readLength(lengthBytes)
	if err != nil {
		return err
	}

	return r.discard(n)
}

func (r *Reader) skipVarint() error {
	lead, err := r.src.ReadByte()
	if err != nil {
		return errs.ErrTruncated
	}
	size, err := encoding.VarintSize(lead)
	if err != nil {
		return err
	}

	return r.discard(size - 1)
}

func (r *Reader) discard(n int) error {
	if n == 0 {
		return nil
	}
	if _, err := r.src.Discard(n); err != nil {
		return errs.ErrTruncated
	}

	return nil
}
