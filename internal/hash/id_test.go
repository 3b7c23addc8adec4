package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID_Deterministic(t *testing.T) {
	require.Equal(t, ID("cpu.usage"), ID("cpu.usage"))
	require.NotEqual(t, ID("cpu.usage"), ID("cpu.usag"))
}

func TestTemplateID_BoundarySensitive(t *testing.T) {
	require.Equal(t, TemplateID([]string{"a", "b"}), TemplateID([]string{"a", "b"}))

	// The separator keeps shifted boundaries distinct.
	require.NotEqual(t, TemplateID([]string{"ab", "c"}), TemplateID([]string{"a", "bc"}))
	require.NotEqual(t, TemplateID([]string{"a"}), TemplateID([]string{"a", ""}))
}
