// Package format defines the keypack wire alphabet: the marker constants that
// classify every token, the Kind enum returned by the reader's peek
// classification, and the envelope compression identifiers.
//
// The wire format is a type-tagged byte stream in the MessagePack tradition,
// extended with a command range (0xF0-0xF9) for key interning, struct
// templates, and unbounded collection framing. All multi-byte numerics are
// big-endian.
package format

// Version is the wire format version this package implements. The stream
// itself carries no version header; the label exists for external
// compatibility declarations only.
const Version = "1.2.0"

// Marker ranges. A fix-form marker packs a small value or length into the
// marker byte itself; the masks below extract it.
const (
	PosFixintMax = 0x7F // 0x00-0x7F: value is the marker (0..127)

	FixmapLow  = 0x80 // 0x80-0x8F: low 4 bits = pair count
	FixmapHigh = 0x8F
	FixmapMask = 0x0F

	FixarrayLow  = 0x90 // 0x90-0x9F: low 4 bits = element count
	FixarrayHigh = 0x9F
	FixarrayMask = 0x0F

	FixstrLow  = 0xA0 // 0xA0-0xBF: low 5 bits = byte length
	FixstrHigh = 0xBF
	FixstrMask = 0x1F

	NegFixintLow = 0xE0 // 0xE0-0xEF: value = (marker & 0x0F) - 16
	NegFixintMax = 0xEF
)

// Single-byte markers and length-prefixed type markers.
const (
	Nil   = 0xC0
	False = 0xC1
	True  = 0xC2

	Bin8  = 0xC3
	Bin16 = 0xC4
	Bin32 = 0xC5

	Float32 = 0xC6
	Float64 = 0xC7

	Uint8  = 0xC8
	Uint16 = 0xC9
	Uint32 = 0xCA
	Uint64 = 0xCB

	Int8  = 0xCC
	Int16 = 0xCD
	Int32 = 0xCE
	Int64 = 0xCF

	Str8  = 0xD0
	Str16 = 0xD1
	Str32 = 0xD2

	Array16 = 0xD3
	Array32 = 0xD4

	Map16 = 0xD5
	Map32 = 0xD6
)

// Command markers (0xF0-0xF9). Commands mutate symbol-table state or frame
// unbounded collections; they are not standalone values, but a key or struct
// command may stand in value position where a consumer expects one (ReadKey,
// ReadStructHeader).
const (
	CmdSetKey       = 0xF0 // varint id, then a string token
	CmdUseKey       = 0xF1 // varint id
	CmdDefineStruct = 0xF2 // varint id, uint8 field count, then field-name key tokens
	CmdUseStruct    = 0xF3 // varint id; field values follow
	CmdClearKeys    = 0xF4
	CmdClearStructs = 0xF5
	CmdClearAll     = 0xF6
	CmdBeginArray   = 0xF7
	CmdEnd          = 0xF8
	CmdBeginMap     = 0xF9
)

// ReservedLow is the first of the reserved markers 0xFA-0xFF. The decoder
// treats any of them as a malformed token.
const ReservedLow = 0xFA

// MaxStructFields is the maximum field count of a struct template; the wire
// carries the count as a single uint8.
const MaxStructFields = 255

// Kind classifies the next token without consuming it. It is the stable enum
// returned by Reader.PeekKind.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNil
	KindBool
	KindInt
	KindFloat
	KindString
	KindBinary
	KindArray
	KindMap
	KindKey     // SET_KEY or USE_KEY command
	KindStruct  // DEFINE_STRUCT or USE_STRUCT command
	KindCommand // CLEAR_* commands
	KindEnd
	KindEOF
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "Nil"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBinary:
		return "Binary"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindKey:
		return "Key"
	case KindStruct:
		return "Struct"
	case KindCommand:
		return "Command"
	case KindEnd:
		return "End"
	case KindEOF:
		return "EOF"
	default:
		return "Invalid"
	}
}

// KindOf classifies a marker byte. Reserved markers classify as KindInvalid.
func KindOf(marker byte) Kind {
	switch {
	case marker <= PosFixintMax:
		return KindInt
	case marker <= FixmapHigh:
		return KindMap
	case marker <= FixarrayHigh:
		return KindArray
	case marker <= FixstrHigh:
		return KindString
	case marker >= NegFixintLow && marker <= NegFixintMax:
		return KindInt
	}

	switch marker {
	case Nil:
		return KindNil
	case False, True:
		return KindBool
	case Bin8, Bin16, Bin32:
		return KindBinary
	case Float32, Float64:
		return KindFloat
	case Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64:
		return KindInt
	case Str8, Str16, Str32:
		return KindString
	case Array16, Array32, CmdBeginArray:
		return KindArray
	case Map16, Map32, CmdBeginMap:
		return KindMap
	case CmdSetKey, CmdUseKey:
		return KindKey
	case CmdDefineStruct, CmdUseStruct:
		return KindStruct
	case CmdClearKeys, CmdClearStructs, CmdClearAll:
		return KindCommand
	case CmdEnd:
		return KindEnd
	default:
		return KindInvalid
	}
}

// CompressionType identifies an envelope compression codec. The envelope is
// an optional outer layer applied by the byte-slice entry points; the token
// stream itself is never compressed in place.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0x1
	CompressionZstd CompressionType = 0x2
	CompressionS2   CompressionType = 0x3
	CompressionLZ4  CompressionType = 0x4
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// TimeFormat selects how time.Time values cross the wire.
type TimeFormat uint8

const (
	// TimeUnixMilli encodes a moment as int64 Unix milliseconds in UTC.
	// Portable across languages; the 2-bit kind tag of the binary form is
	// dropped.
	TimeUnixMilli TimeFormat = 0x1

	// TimeBinary encodes a moment as a signed 64-bit integer whose low 62
	// bits are ticks (100ns units) since 0001-01-01T00:00:00 and whose top
	// 2 bits carry a kind flag (0 unspecified, 1 UTC, 2 local).
	TimeBinary TimeFormat = 0x2
)

func (t TimeFormat) String() string {
	switch t {
	case TimeUnixMilli:
		return "UnixMilli"
	case TimeBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}
