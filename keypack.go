// Package keypack implements a compact, self-describing binary serialization
// format: a type-tagged token stream in the MessagePack tradition, extended
// with in-stream commands that intern repeated map keys and define reusable
// struct templates. Highly homogeneous payloads (record lists, tabular data,
// event streams) encode their key strings only once.
//
// # Basic Usage
//
// Encoding and decoding a record:
//
//	type User struct {
//	    Name   string `keypack:"name"`
//	    Age    int    `keypack:"age"`
//	    Active bool   `keypack:"active"`
//	}
//
//	data, _ := keypack.Marshal(User{Name: "alice", Age: 30, Active: true})
//
//	var u User
//	_ = keypack.Unmarshal(data, &u)
//
// Streaming with an explicit encoder:
//
//	enc := keypack.NewEncoder(w)
//	for _, u := range users {
//	    _ = enc.Encode(u)
//	}
//	_ = enc.Close()
//
// # Package Structure
//
// This package provides the high-level entry points. The stream package
// exposes the low-level token writer and reader (including unbounded
// BEGIN/END collections), bind implements the object binder and its
// schema-drift tolerance, tabular bridges row-of-map tables, format holds
// the wire alphabet, and compress supplies the optional envelope codecs.
//
// Decoding is resilient to schema drift: unknown fields are skipped, missing
// fields keep their defaults, and type-mismatched fields are skipped without
// aborting the record.
package keypack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arloliu/keypack/bind"
	"github.com/arloliu/keypack/compress"
	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/internal/options"
	"github.com/arloliu/keypack/stream"
)

// envelopeMagic is the first byte of a compression envelope. It sits in the
// reserved marker range, so it can never open a raw token stream.
const envelopeMagic = 0xFE

type config struct {
	binder      bind.Options
	compression format.CompressionType
	limits      stream.Limits
	leaveOpen   bool
}

func defaultConfig() *config {
	return &config{
		binder:      bind.DefaultOptions(),
		compression: format.CompressionNone,
		limits:      stream.DefaultLimits(),
	}
}

// Option configures Marshal, Unmarshal, Encoder and Decoder.
type Option = options.Option[*config]

// WithKeyInterning toggles routing of struct field names and map keys
// through the key-intern table. On by default; when off, keys are emitted as
// inline strings.
func WithKeyInterning(enabled bool) Option {
	return options.NoError(func(c *config) {
		c.binder.KeyInterning = enabled
	})
}

// WithStructTemplates makes the encoder define one struct template per
// record type per stream and emit records as template instances. Decoding
// accepts both the map and the template form regardless of this setting.
func WithStructTemplates(enabled bool) Option {
	return options.NoError(func(c *config) {
		c.binder.StructTemplates = enabled
	})
}

// WithTimeFormat selects the wire form of time.Time values
// (format.TimeUnixMilli or format.TimeBinary).
func WithTimeFormat(tf format.TimeFormat) Option {
	return options.NoError(func(c *config) {
		c.binder.TimeFormat = tf
	})
}

// WithCompression wraps Marshal output in a compression envelope and lets
// Unmarshal accept one. Only the byte-slice entry points consult it;
// streaming encoders and decoders always carry the raw token stream.
func WithCompression(typ format.CompressionType) Option {
	return options.NoError(func(c *config) {
		c.compression = typ
	})
}

// WithLimits replaces the default reader limits on the decode side.
func WithLimits(limits stream.Limits) Option {
	return options.NoError(func(c *config) {
		c.limits = limits
	})
}

// WithLeaveOpen keeps the underlying stream open when an Encoder or Decoder
// is closed.
func WithLeaveOpen(leaveOpen bool) Option {
	return options.NoError(func(c *config) {
		c.leaveOpen = leaveOpen
	})
}

// Marshal encodes v into a byte slice. With WithCompression, the token
// stream is wrapped in a compression envelope.
func Marshal(v any, opts ...Option) ([]byte, error) {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	enc := bind.NewEncoder(w, cfg.binder)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if cfg.compression == format.CompressionNone {
		return buf.Bytes(), nil
	}

	codec, err := compress.CreateCodec(cfg.compression)
	if err != nil {
		return nil, err
	}
	compressed, err := codec.Compress(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}

	out := make([]byte, 0, len(compressed)+2)
	out = append(out, envelopeMagic, byte(cfg.compression))
	out = append(out, compressed...)

	return out, nil
}

// Unmarshal decodes data into v, which must be a non-nil pointer. A
// compression envelope is detected and unwrapped automatically.
func Unmarshal(data []byte, v any, opts ...Option) error {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return err
	}

	payload, err := unwrapEnvelope(data)
	if err != nil {
		return err
	}

	r := stream.NewReader(bytes.NewReader(payload), stream.WithLimits(cfg.limits))
	dec := bind.NewDecoder(r, cfg.binder)

	return dec.Decode(v)
}

// unwrapEnvelope strips a compression envelope if present, returning the
// raw token stream.
func unwrapEnvelope(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != envelopeMagic {
		return data, nil
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("envelope of %d bytes: %w", len(data), errs.ErrBadEnvelope)
	}

	codec, err := compress.CreateCodec(format.CompressionType(data[1]))
	if err != nil {
		return nil, err
	}
	payload, err := codec.Decompress(data[2:])
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}

	return payload, nil
}

// Encoder writes a sequence of values to an io.Writer as one token stream.
// The key and struct-template tables persist across Encode calls, so
// repeated record types amortize their key strings over the whole stream.
//
// Encoder is not safe for concurrent use.
type Encoder struct {
	w   *stream.Writer
	enc *bind.Encoder
}

// NewEncoder creates an Encoder emitting to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	cfg := defaultConfig()
	_ = options.Apply(cfg, opts...)

	sw := stream.NewWriter(w, stream.WithWriterLeaveOpen(cfg.leaveOpen))

	return &Encoder{
		w:   sw,
		enc: bind.NewEncoder(sw, cfg.binder),
	}
}

// Encode writes one value to the stream.
func (e *Encoder) Encode(v any) error {
	return e.enc.Encode(v)
}

// Writer returns the low-level token writer sharing this Encoder's symbol
// tables, for callers mixing record encoding with manual framing.
func (e *Encoder) Writer() *stream.Writer {
	return e.w
}

// Binder returns the object-binding encoder layered on Writer.
func (e *Encoder) Binder() *bind.Encoder {
	return e.enc
}

// Flush forwards to the sink's Flush hook, if any.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Close flushes and closes the underlying stream unless WithLeaveOpen(true)
// was given.
func (e *Encoder) Close() error {
	return e.w.Close()
}

// Decoder reads a sequence of values from an io.Reader as one token stream.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	r   *stream.Reader
	dec *bind.Decoder
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	cfg := defaultConfig()
	_ = options.Apply(cfg, opts...)

	sr := stream.NewReader(r,
		stream.WithLimits(cfg.limits),
		stream.WithReaderLeaveOpen(cfg.leaveOpen),
	)

	return &Decoder{
		r:   sr,
		dec: bind.NewDecoder(sr, cfg.binder),
	}
}

// Decode reads one value from the stream into v, which must be a non-nil
// pointer.
func (d *Decoder) Decode(v any) error {
	return d.dec.Decode(v)
}

// ReadAny reads one value dynamically, resolving by wire kind to nil, bool,
// int64, float64, string, []byte, []any or map[string]any.
func (d *Decoder) ReadAny() (any, error) {
	return d.dec.ReadAny()
}

// Reader returns the low-level token reader sharing this Decoder's symbol
// tables.
func (d *Decoder) Reader() *stream.Reader {
	return d.r
}

// Binder returns the object-binding decoder layered on Reader.
func (d *Decoder) Binder() *bind.Decoder {
	return d.dec
}

// Close closes the underlying stream unless WithLeaveOpen(true) was given.
func (d *Decoder) Close() error {
	return d.r.Close()
}
