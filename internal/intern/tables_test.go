package intern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyTable_DenseIDs(t *testing.T) {
	table := NewKeyTable()

	require.Equal(t, uint32(0), table.Intern("a"))
	require.Equal(t, uint32(1), table.Intern("b"))
	require.Equal(t, uint32(2), table.Intern("c"))
	require.Equal(t, 3, table.Len())

	id, ok := table.Lookup("b")
	require.True(t, ok)
	require.Equal(t, uint32(1), id)

	_, ok = table.Lookup("missing")
	require.False(t, ok)
}

func TestKeyTable_ClearRestartsAtZero(t *testing.T) {
	table := NewKeyTable()
	table.Intern("a")
	table.Intern("b")

	table.Clear()
	require.Equal(t, 0, table.Len())
	require.Equal(t, uint32(0), table.Intern("c"))
}

func TestStructTable_LookupExactNames(t *testing.T) {
	table := NewStructTable()

	id := table.Define([]string{"name", "age"})
	require.Equal(t, uint32(0), id)

	found, ok := table.Lookup([]string{"name", "age"})
	require.True(t, ok)
	require.Equal(t, id, found)

	// Same joined bytes, different boundaries, must not match.
	_, ok = table.Lookup([]string{"namea", "ge"})
	require.False(t, ok)

	_, ok = table.Lookup([]string{"name"})
	require.False(t, ok)
}

func TestStructTable_DefineCopiesNames(t *testing.T) {
	table := NewStructTable()

	names := []string{"x", "y"}
	table.Define(names)
	names[0] = "mutated"

	_, ok := table.Lookup([]string{"x", "y"})
	require.True(t, ok)
}

func TestStructTable_ClearRestartsAtZero(t *testing.T) {
	table := NewStructTable()
	table.Define([]string{"a"})
	table.Define([]string{"b"})
	require.Equal(t, 2, table.Len())

	table.Clear()
	require.Equal(t, 0, table.Len())
	require.Equal(t, uint32(0), table.Define([]string{"c"}))
}
