package bind

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"time"

	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/stream"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	bigIntType   = reflect.TypeOf((*big.Int)(nil))
	bigFloatType = reflect.TypeOf((*big.Float)(nil))
	bigRatType   = reflect.TypeOf((*big.Rat)(nil))
	byteSlice    = reflect.TypeOf([]byte(nil))
)

// Encoder maps Go values onto the token stream through a low-level Writer.
// The runtime type of each value drives the encoding; the declared type of a
// struct field only selects the descriptor entry.
type Encoder struct {
	w    *stream.Writer
	opts Options
}

// NewEncoder creates an Encoder over a low-level Writer.
func NewEncoder(w *stream.Writer, opts Options) *Encoder {
	return &Encoder{w: w, opts: opts}
}

// Writer returns the underlying low-level writer.
func (e *Encoder) Writer() *stream.Writer {
	return e.w
}

// Encode writes one value to the stream.
func (e *Encoder) Encode(v any) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return e.w.WriteNil()
	}

	return e.encodeValue(rv, 0)
}

func (e *Encoder) encodeValue(rv reflect.Value, depth int) error {
	if depth > e.opts.MaxDepth {
		return fmt.Errorf("encode depth %d (cyclic value?): %w", depth, errs.ErrDepthExceeded)
	}

	switch rv.Type() {
	case timeType:
		return e.w.WriteInt(encodeTime(rv.Interface().(time.Time), e.opts.TimeFormat))
	case durationType:
		return e.w.WriteInt(rv.Int())
	case bigIntType, bigFloatType, bigRatType:
		return e.encodeDecimal(rv)
	}

	switch rv.Kind() {
	case reflect.Bool:
		return e.w.WriteBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.w.WriteInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.w.WriteUint(rv.Uint())
	case reflect.Float32:
		return e.w.WriteFloat32(float32(rv.Float()))
	case reflect.Float64:
		return e.w.WriteFloat64(rv.Float())
	case reflect.String:
		return e.w.WriteString(rv.String())
	case reflect.Slice:
		return e.encodeSlice(rv, depth)
	case reflect.Array:
		return e.encodeArray(rv, depth)
	case reflect.Map:
		return e.encodeMap(rv, depth)
	case reflect.Struct:
		return e.encodeStruct(rv, depth)
	case reflect.Pointer:
		if rv.IsNil() {
			return e.w.WriteNil()
		}

		return e.encodeValue(rv.Elem(), depth)
	case reflect.Interface:
		if rv.IsNil() {
			return e.w.WriteNil()
		}

		return e.encodeValue(rv.Elem(), depth)
	default:
		return fmt.Errorf("cannot encode %s: %w", rv.Type(), errs.ErrUnsupportedTarget)
	}
}

// encodeDecimal writes a big.Int, big.Float or big.Rat as its base-10
// string literal.
func (e *Encoder) encodeDecimal(rv reflect.Value) error {
	if rv.IsNil() {
		return e.w.WriteNil()
	}

	switch v := rv.Interface().(type) {
	case *big.Int:
		return e.w.WriteString(v.String())
	case *big.Float:
		return e.w.WriteString(v.Text('g', -1))
	default:
		return e.w.WriteString(rv.Interface().(*big.Rat).RatString())
	}
}

func (e *Encoder) encodeSlice(rv reflect.Value, depth int) error {
	if rv.IsNil() {
		return e.w.WriteNil()
	}
	if rv.Type() == byteSlice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return e.w.WriteBinary(rv.Bytes())
	}

	if err := e.w.WriteArrayHeader(rv.Len()); err != nil {
		return err
	}
	for i := 0; i < rv.Len(); i++ {
		if err := e.encodeValue(rv.Index(i), depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (e *Encoder) encodeArray(rv reflect.Value, depth int) error {
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// Byte arrays (UUIDs and friends) go out as binary blobs in their
		// in-memory order, which for [16]byte UUIDs is RFC 4122 order.
		buf := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)

		return e.w.WriteBinary(buf)
	}

	if err := e.w.WriteArrayHeader(rv.Len()); err != nil {
		return err
	}
	for i := 0; i < rv.Len(); i++ {
		if err := e.encodeValue(rv.Index(i), depth+1); err != nil {
			return err
		}
	}

	return nil
}

// encodeMap writes a map with string-kind keys. Keys are sorted so output is
// reproducible; the format itself does not require canonical order.
func (e *Encoder) encodeMap(rv reflect.Value, depth int) error {
	if rv.IsNil() {
		return e.w.WriteNil()
	}
	if rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("map key type %s is not a string: %w", rv.Type().Key(), errs.ErrUnsupportedTarget)
	}

	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)

	if err := e.w.WriteMapHeader(len(keys)); err != nil {
		return err
	}
	keyValue := reflect.New(rv.Type().Key()).Elem()
	for _, k := range keys {
		if err := e.WriteKey(k); err != nil {
			return err
		}
		keyValue.SetString(k)
		if err := e.encodeValue(rv.MapIndex(keyValue), depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (e *Encoder) encodeStruct(rv reflect.Value, depth int) error {
	desc, err := DescriptorOf(rv.Type())
	if err != nil {
		return err
	}

	if e.opts.StructTemplates && len(desc.Fields) <= format.MaxStructFields {
		return e.encodeStructTemplate(desc, rv, depth)
	}

	if err := e.w.WriteMapHeader(len(desc.Fields)); err != nil {
		return err
	}
	for i := range desc.Fields {
		f := &desc.Fields[i]
		if err := e.WriteKey(f.Name); err != nil {
			return err
		}
		if err := e.encodeValue(rv.FieldByIndex(f.Index), depth+1); err != nil {
			return err
		}
	}

	return nil
}

// encodeStructTemplate emits the record as USE_STRUCT + values. The
// writer-side template table dedups the DEFINE_STRUCT, so the field names
// cross the wire once per stream.
func (e *Encoder) encodeStructTemplate(desc *TypeDescriptor, rv reflect.Value, depth int) error {
	id, err := e.w.DefineStruct(desc.Names()...)
	if err != nil {
		return err
	}
	if err := e.w.UseStruct(id); err != nil {
		return err
	}
	for i := range desc.Fields {
		if err := e.encodeValue(rv.FieldByIndex(desc.Fields[i].Index), depth+1); err != nil {
			return err
		}
	}

	return nil
}

// WriteKey emits a map key under the encoder's interning policy: through
// the key table when interning is on, as an inline string otherwise.
func (e *Encoder) WriteKey(key string) error {
	if e.opts.KeyInterning {
		return e.w.WriteKey(key)
	}

	return e.w.WriteString(key)
}
