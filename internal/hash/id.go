package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// TemplateID computes the xxHash64 fingerprint of an ordered field-name list.
// A NUL separator keeps ("ab","c") and ("a","bc") distinct.
func TemplateID(names []string) uint64 {
	var d xxhash.Digest
	d.Reset()
	for _, name := range names {
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
	}

	return d.Sum64()
}
