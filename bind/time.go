package bind

import (
	"time"

	"github.com/arloliu/keypack/format"
)

// The binary moment form packs a 2-bit kind into the top of a signed 64-bit
// integer whose low 62 bits are ticks: 100ns units since 0001-01-01T00:00:00.
const (
	ticksPerSecond = 10_000_000
	ticksPerMilli  = 10_000

	// unixEpochTicks is the tick count of 1970-01-01T00:00:00 relative to
	// the year-1 origin.
	unixEpochTicks = 621_355_968_000_000_000

	ticksMask = 0x3FFF_FFFF_FFFF_FFFF

	kindUnspecified = 0
	kindUTC         = 1
	kindLocal       = 2
)

// encodeTime converts a moment to its int64 wire form under the given
// policy.
func encodeTime(t time.Time, tf format.TimeFormat) int64 {
	if tf == format.TimeBinary {
		ticks := unixEpochTicks + t.Unix()*ticksPerSecond + int64(t.Nanosecond())/100

		kind := int64(kindLocal)
		if t.Location() == time.UTC {
			kind = kindUTC
		}

		return kind<<62 | (ticks & ticksMask)
	}

	return t.UnixMilli()
}

// decodeTime converts an int64 wire form back to a moment under the given
// policy. TimeUnixMilli always yields UTC; TimeBinary restores the kind
// flag (UTC, local, or unspecified-as-UTC).
func decodeTime(v int64, tf format.TimeFormat) time.Time {
	if tf == format.TimeBinary {
		kind := v >> 62 & 0x3
		ticks := v & ticksMask

		unixTicks := ticks - unixEpochTicks
		sec := unixTicks / ticksPerSecond
		nsec := unixTicks % ticksPerSecond * 100

		t := time.Unix(sec, nsec)
		if kind == kindLocal {
			return t.Local()
		}

		return t.UTC()
	}

	return time.UnixMilli(v).UTC()
}
