// Package intern holds the writer-side symbol tables: the key-intern table
// and the struct-template table. Both assign dense monotonic ids starting at
// zero and restart after a clear. The reader keeps its own mirror tables in
// the stream package; the two stay in lock-step through the in-stream
// SET/DEFINE/CLEAR commands.
package intern

import (
	"github.com/arloliu/keypack/internal/hash"
)

// KeyTable maps key strings to their interned ids on the encoder side.
type KeyTable struct {
	ids  map[string]uint32
	next uint32
}

// NewKeyTable creates an empty key table.
func NewKeyTable() *KeyTable {
	return &KeyTable{
		ids: make(map[string]uint32),
	}
}

// Lookup returns the id of key and true if key is already interned.
func (t *KeyTable) Lookup(key string) (uint32, bool) {
	id, ok := t.ids[key]
	return id, ok
}

// Intern assigns the next id to key and returns it. The caller must have
// checked Lookup first; interning the same key twice leaks an id.
func (t *KeyTable) Intern(key string) uint32 {
	id := t.next
	t.ids[key] = id
	t.next++

	return id
}

// Len returns the number of interned keys.
func (t *KeyTable) Len() int {
	return len(t.ids)
}

// Clear empties the table; the next id restarts at zero.
func (t *KeyTable) Clear() {
	t.ids = make(map[string]uint32)
	t.next = 0
}

// templateEntry retains the exact field names so that a fingerprint hit can
// be verified; two distinct field lists hashing alike must not share an id.
type templateEntry struct {
	id    uint32
	names []string
}

// StructTable maps ordered field-name lists to struct-template ids. Lookups
// go through an xxHash64 fingerprint with an exact comparison on hit, so a
// hash collision degrades to a fresh definition rather than a wrong reuse.
type StructTable struct {
	byFingerprint map[uint64][]templateEntry
	next          uint32
}

// NewStructTable creates an empty struct-template table.
func NewStructTable() *StructTable {
	return &StructTable{
		byFingerprint: make(map[uint64][]templateEntry),
	}
}

// Lookup returns the id of a previously defined template with exactly the
// given field names.
func (t *StructTable) Lookup(names []string) (uint32, bool) {
	fp := hash.TemplateID(names)
	for _, entry := range t.byFingerprint[fp] {
		if equalNames(entry.names, names) {
			return entry.id, true
		}
	}

	return 0, false
}

// Define assigns the next id to the given field names and returns it. The
// names slice is copied; callers may reuse their backing array.
func (t *StructTable) Define(names []string) uint32 {
	id := t.next
	t.next++

	owned := make([]string, len(names))
	copy(owned, names)

	fp := hash.TemplateID(owned)
	t.byFingerprint[fp] = append(t.byFingerprint[fp], templateEntry{id: id, names: owned})

	return id
}

// Len returns the number of defined templates.
func (t *StructTable) Len() int {
	n := 0
	for _, entries := range t.byFingerprint {
		n += len(entries)
	}

	return n
}

// Clear empties the table; the next id restarts at zero.
func (t *StructTable) Clear() {
	t.byFingerprint = make(map[uint64][]templateEntry)
	t.next = 0
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
