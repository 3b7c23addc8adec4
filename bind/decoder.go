package bind

import (
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/stream"
)

// Decoder maps the token stream into Go values through a low-level Reader.
//
// Record decoding tolerates schema drift: unknown keys are skipped, missing
// keys leave the target's values untouched, and a known key with an
// incompatible wire type is skipped while the rest of the record decodes.
type Decoder struct {
	r    *stream.Reader
	opts Options
}

// NewDecoder creates a Decoder over a low-level Reader.
func NewDecoder(r *stream.Reader, opts Options) *Decoder {
	return &Decoder{r: r, opts: opts}
}

// Reader returns the underlying low-level reader.
func (d *Decoder) Reader() *stream.Reader {
	return d.r
}

// Decode reads one value from the stream into v, which must be a non-nil
// pointer.
func (d *Decoder) Decode(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("target %T: %w", v, errs.ErrNotPointer)
	}

	return d.decodeValue(rv.Elem(), 0)
}

// drainCommands applies any CLEAR commands standing before the next value.
func (d *Decoder) drainCommands() error {
	for {
		kind, err := d.r.PeekKind()
		if err != nil {
			return err
		}
		if kind != format.KindCommand {
			return nil
		}
		if err := d.r.ReadCommand(); err != nil {
			return err
		}
	}
}

func (d *Decoder) decodeValue(rv reflect.Value, depth int) error {
	if depth > d.r.Limits().MaxDepth {
		return fmt.Errorf("decode depth %d: %w", depth, errs.ErrDepthExceeded)
	}
	if err := d.drainCommands(); err != nil {
		return err
	}

	switch rv.Type() {
	case timeType:
		return d.decodeTimeValue(rv)
	case durationType:
		return d.decodeDurationValue(rv)
	case bigIntType, bigFloatType, bigRatType:
		return d.decodeDecimalValue(rv)
	}

	switch rv.Kind() {
	case reflect.Bool:
		v, err := d.r.ReadBool()
		if err != nil {
			return err
		}
		rv.SetBool(v)

		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := d.r.ReadInt()
		if err != nil {
			return err
		}
		if rv.OverflowInt(v) {
			return fmt.Errorf("value %d overflows %s: %w", v, rv.Type(), errs.ErrTypeMismatch)
		}
		rv.SetInt(v)

		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := d.r.ReadUint()
		if err != nil {
			return err
		}
		if rv.OverflowUint(v) {
			return fmt.Errorf("value %d overflows %s: %w", v, rv.Type(), errs.ErrTypeMismatch)
		}
		rv.SetUint(v)

		return nil

	case reflect.Float32, reflect.Float64:
		v, err := d.r.ReadFloat64()
		if err != nil {
			return err
		}
		rv.SetFloat(v)

		return nil

	case reflect.String:
		// ReadKey also accepts plain string tokens, and additionally binds
		// interned key commands standing in value position.
		v, err := d.r.ReadKey()
		if err != nil {
			return err
		}
		rv.SetString(v)

		return nil

	case reflect.Slice:
		return d.decodeSlice(rv, depth)
	case reflect.Array:
		return d.decodeArray(rv, depth)
	case reflect.Map:
		return d.decodeMap(rv, depth)
	case reflect.Struct:
		return d.decodeStruct(rv, depth)

	case reflect.Pointer:
		kind, err := d.r.PeekKind()
		if err != nil {
			return err
		}
		if kind == format.KindNil {
			if err := d.r.ReadNil(); err != nil {
				return err
			}
			rv.SetZero()

			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}

		return d.decodeValue(rv.Elem(), depth)

	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return fmt.Errorf("non-empty interface %s: %w", rv.Type(), errs.ErrUnsupportedTarget)
		}
		v, err := d.readAny(depth)
		if err != nil {
			return err
		}
		if v == nil {
			rv.SetZero()
		} else {
			rv.Set(reflect.ValueOf(v))
		}

		return nil

	default:
		return fmt.Errorf("cannot decode into %s: %w", rv.Type(), errs.ErrUnsupportedTarget)
	}
}

func (d *Decoder) decodeTimeValue(rv reflect.Value) error {
	kind, err := d.r.PeekKind()
	if err != nil {
		return err
	}
	switch kind {
	case format.KindInt:
		v, err := d.r.ReadInt()
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(decodeTime(v, d.opts.TimeFormat)))

		return nil
	case format.KindString:
		s, err := d.r.ReadString()
		if err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse time %q: %w", s, errs.ErrTypeMismatch)
		}
		rv.Set(reflect.ValueOf(t))

		return nil
	default:
		return fmt.Errorf("wire kind %s for time.Time: %w", kind, errs.ErrTypeMismatch)
	}
}

func (d *Decoder) decodeDurationValue(rv reflect.Value) error {
	kind, err := d.r.PeekKind()
	if err != nil {
		return err
	}
	switch kind {
	case format.KindInt:
		v, err := d.r.ReadInt()
		if err != nil {
			return err
		}
		rv.SetInt(v)

		return nil
	case format.KindString:
		s, err := d.r.ReadString()
		if err != nil {
			return err
		}
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, errs.ErrTypeMismatch)
		}
		rv.SetInt(int64(dur))

		return nil
	default:
		return fmt.Errorf("wire kind %s for time.Duration: %w", kind, errs.ErrTypeMismatch)
	}
}

// decodeDecimalValue reads a decimal carried as a string (canonical) or a
// float token into a big.Int, big.Float or big.Rat target.
func (d *Decoder) decodeDecimalValue(rv reflect.Value) error {
	kind, err := d.r.PeekKind()
	if err != nil {
		return err
	}

	var literal string
	switch kind {
	case format.KindNil:
		if err := d.r.ReadNil(); err != nil {
			return err
		}
		rv.SetZero()

		return nil
	case format.KindString:
		literal, err = d.r.ReadString()
		if err != nil {
			return err
		}
	case format.KindFloat:
		f, err := d.r.ReadFloat64()
		if err != nil {
			return err
		}
		literal = big.NewFloat(f).Text('g', -1)
	default:
		return fmt.Errorf("wire kind %s for decimal: %w", kind, errs.ErrTypeMismatch)
	}

	switch rv.Type() {
	case bigIntType:
		v, ok := new(big.Int).SetString(literal, 10)
		if !ok {
			return fmt.Errorf("parse decimal %q: %w", literal, errs.ErrTypeMismatch)
		}
		rv.Set(reflect.ValueOf(v))
	case bigFloatType:
		v, _, err := big.ParseFloat(literal, 10, big.MaxPrec, big.ToNearestEven)
		if err != nil {
			return fmt.Errorf("parse decimal %q: %w", literal, errs.ErrTypeMismatch)
		}
		rv.Set(reflect.ValueOf(v))
	default:
		v, ok := new(big.Rat).SetString(literal)
		if !ok {
			return fmt.Errorf("parse decimal %q: %w", literal, errs.ErrTypeMismatch)
		}
		rv.Set(reflect.ValueOf(v))
	}

	return nil
}

func (d *Decoder) decodeSlice(rv reflect.Value, depth int) error {
	kind, err := d.r.PeekKind()
	if err != nil {
		return err
	}

	switch kind {
	case format.KindNil:
		if err := d.r.ReadNil(); err != nil {
			return err
		}
		rv.SetZero()

		return nil
	case format.KindBinary:
		if rv.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("binary into %s: %w", rv.Type(), errs.ErrTypeMismatch)
		}
		data, err := d.r.ReadBinary()
		if err != nil {
			return err
		}
		rv.SetBytes(data)

		return nil
	case format.KindArray:
		n, err := d.r.ReadArrayHeader()
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("unbounded array into %s: %w", rv.Type(), errs.ErrInvalidNesting)
		}
		out := reflect.MakeSlice(rv.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := d.decodeValue(out.Index(i), depth+1); err != nil {
				return err
			}
		}
		rv.Set(out)

		return nil
	default:
		return fmt.Errorf("wire kind %s into %s: %w", kind, rv.Type(), errs.ErrTypeMismatch)
	}
}

func (d *Decoder) decodeArray(rv reflect.Value, depth int) error {
	kind, err := d.r.PeekKind()
	if err != nil {
		return err
	}

	if kind == format.KindBinary && rv.Type().Elem().Kind() == reflect.Uint8 {
		data, err := d.r.ReadBinary()
		if err != nil {
			return err
		}
		if len(data) != rv.Len() {
			return fmt.Errorf("binary of %d bytes into %s: %w", len(data), rv.Type(), errs.ErrTypeMismatch)
		}
		reflect.Copy(rv, reflect.ValueOf(data))

		return nil
	}

	if kind != format.KindArray {
		return fmt.Errorf("wire kind %s into %s: %w", kind, rv.Type(), errs.ErrTypeMismatch)
	}
	n, err := d.r.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("unbounded array into %s: %w", rv.Type(), errs.ErrInvalidNesting)
	}
	if n != rv.Len() {
		return fmt.Errorf("%d elements into %s: %w", n, rv.Type(), errs.ErrInvalidNesting)
	}
	for i := 0; i < n; i++ {
		if err := d.decodeValue(rv.Index(i), depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (d *Decoder) decodeMap(rv reflect.Value, depth int) error {
	if rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("map key type %s: %w", rv.Type().Key(), errs.ErrUnsupportedTarget)
	}

	kind, err := d.r.PeekKind()
	if err != nil {
		return err
	}
	if kind == format.KindNil {
		if err := d.r.ReadNil(); err != nil {
			return err
		}
		rv.SetZero()

		return nil
	}
	if kind != format.KindMap {
		return fmt.Errorf("wire kind %s into %s: %w", kind, rv.Type(), errs.ErrTypeMismatch)
	}

	n, err := d.r.ReadMapHeader()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("unbounded map into %s: %w", rv.Type(), errs.ErrInvalidNesting)
	}

	out := reflect.MakeMapWithSize(rv.Type(), n)
	keyValue := reflect.New(rv.Type().Key()).Elem()
	for i := 0; i < n; i++ {
		key, err := d.r.ReadKey()
		if err != nil {
			return err
		}
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := d.decodeValue(elem, depth+1); err != nil {
			return err
		}
		keyValue.SetString(key)
		out.SetMapIndex(keyValue, elem)
	}
	rv.Set(out)

	return nil
}

// decodeStruct reads a record from either a map encoding or a
// struct-template encoding, applying the drift-tolerance rules.
func (d *Decoder) decodeStruct(rv reflect.Value, depth int) error {
	desc, err := DescriptorOf(rv.Type())
	if err != nil {
		return err
	}

	for {
		if err := d.drainCommands(); err != nil {
			return err
		}
		kind, err := d.r.PeekKind()
		if err != nil {
			return err
		}

		switch kind {
		case format.KindStruct:
			names, defined, err := d.r.ReadStructHeader()
			if err != nil {
				return err
			}
			if defined {
				// Template registered; the record itself follows as a
				// USE_STRUCT (or another define).
				continue
			}

			return d.decodeTemplateFields(desc, rv, names, depth)

		case format.KindMap:
			return d.decodeMapFields(desc, rv, depth)

		default:
			return fmt.Errorf("wire kind %s into %s: %w", kind, rv.Type(), errs.ErrTypeMismatch)
		}
	}
}

// decodeMapFields binds map pairs to descriptor fields. Unknown keys and
// incompatible values are skipped; missing keys leave fields untouched.
func (d *Decoder) decodeMapFields(desc *TypeDescriptor, rv reflect.Value, depth int) error {
	n, err := d.r.ReadMapHeader()
	if err != nil {
		return err
	}

	if n >= 0 {
		for i := 0; i < n; i++ {
			if err := d.decodeOneField(desc, rv, depth); err != nil {
				return err
			}
		}

		return nil
	}

	// Unbounded map: records produced by streaming writers.
	for {
		end, err := d.r.IsEnd()
		if err != nil {
			return err
		}
		if end {
			return d.r.ReadEnd()
		}
		if err := d.decodeOneField(desc, rv, depth); err != nil {
			return err
		}
	}
}

func (d *Decoder) decodeOneField(desc *TypeDescriptor, rv reflect.Value, depth int) error {
	key, err := d.r.ReadKey()
	if err != nil {
		return err
	}

	field, known := desc.FieldByName(key)
	if !known {
		return d.r.Skip()
	}

	compatible, err := d.fieldCompatible(field.Type)
	if err != nil {
		return err
	}
	if !compatible {
		return d.r.Skip()
	}

	return d.decodeValue(rv.FieldByIndex(field.Index), depth+1)
}

// decodeTemplateFields binds USE_STRUCT values, in template order, to
// descriptor fields. The drift rules match the map path: a template name
// with no descriptor field skips its value, an incompatible value is
// skipped, and descriptor fields absent from the template keep their values.
func (d *Decoder) decodeTemplateFields(desc *TypeDescriptor, rv reflect.Value, names []string, depth int) error {
	for _, name := range names {
		field, known := desc.FieldByName(name)
		if !known {
			if err := d.r.Skip(); err != nil {
				return err
			}

			continue
		}

		compatible, err := d.fieldCompatible(field.Type)
		if err != nil {
			return err
		}
		if !compatible {
			if err := d.r.Skip(); err != nil {
				return err
			}

			continue
		}

		if err := d.decodeValue(rv.FieldByIndex(field.Index), depth+1); err != nil {
			return err
		}
	}

	return nil
}

// fieldCompatible peeks the next wire kind and reports whether it can bind
// to the declared field type.
func (d *Decoder) fieldCompatible(t reflect.Type) (bool, error) {
	kind, err := d.r.PeekKind()
	if err != nil {
		return false, err
	}

	return kindCompatible(kind, t), nil
}

// kindCompatible implements the wire-to-declared compatibility table.
func kindCompatible(kind format.Kind, t reflect.Type) bool {
	// Declared any binds every wire kind the dynamic reader understands.
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return kind != format.KindEnd && kind != format.KindEOF && kind != format.KindInvalid
	}

	switch kind {
	case format.KindNil:
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			return true
		default:
			return false
		}
	case format.KindBool:
		return t.Kind() == reflect.Bool
	case format.KindInt:
		switch t {
		case timeType, durationType:
			return true
		}
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		case reflect.Pointer:
			return kindCompatible(kind, t.Elem())
		default:
			return false
		}
	case format.KindFloat:
		switch t {
		case bigIntType, bigFloatType, bigRatType:
			return true
		}
		switch t.Kind() {
		case reflect.Float32, reflect.Float64:
			return true
		case reflect.Pointer:
			return kindCompatible(kind, t.Elem())
		default:
			return false
		}
	case format.KindString, format.KindKey:
		switch t {
		case timeType, durationType, bigIntType, bigFloatType, bigRatType:
			return true
		}
		switch t.Kind() {
		case reflect.String:
			return true
		case reflect.Pointer:
			return kindCompatible(format.KindString, t.Elem())
		default:
			return false
		}
	case format.KindBinary:
		switch t.Kind() {
		case reflect.Slice, reflect.Array:
			return t.Elem().Kind() == reflect.Uint8
		case reflect.Pointer:
			return kindCompatible(kind, t.Elem())
		default:
			return false
		}
	case format.KindArray:
		switch t.Kind() {
		case reflect.Slice, reflect.Array:
			return true
		case reflect.Pointer:
			return kindCompatible(kind, t.Elem())
		default:
			return false
		}
	case format.KindMap, format.KindStruct:
		switch t.Kind() {
		case reflect.Map, reflect.Struct:
			return true
		case reflect.Pointer:
			return kindCompatible(kind, t.Elem())
		default:
			return false
		}
	default:
		return false
	}
}
