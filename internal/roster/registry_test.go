package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanID(t *testing.T) {
	t.Parallel()

	id, err := CleanID("  A-1 \t")
	require.NoError(t, err)
	assert.Equal(t, "A-1", id)

	for _, blank := range []string{"", "   ", "\t\n"} {
		_, err := CleanID(blank)
		require.ErrorIs(t, err, ErrEmptyID)
	}
}

func TestRegistry_Records(t *testing.T) {
	t.Parallel()

	reg := &Registry{
		IDs:       []string{"A", "B"},
		Names:     []string{"Alice", ""},
		FamilyIDs: []string{"7", "3"},
		Active:    []string{"B"},
	}

	assert.Equal(t, []Record{
		{ID: "A", DisplayName: "Alice", FamilyID: "7", Active: false},
		{ID: "B", DisplayName: "B", FamilyID: "3", Active: true},
	}, reg.Records())
	assert.Equal(t, 1, reg.ActiveCount())
	assert.True(t, reg.Known("A"))
	assert.False(t, reg.Known("a"))
	assert.True(t, reg.IsActive("B"))
	assert.False(t, reg.IsActive("A"))
}

func TestRegistry_Clone(t *testing.T) {
	t.Parallel()

	reg := &Registry{
		IDs:    []string{"A"},
		Names:  []string{"Alice"},
		Active: []string{"A"},
		Extra:  []Field{{Key: "Languages", Values: []string{"EN"}}},
	}
	clone := reg.Clone()
	clone.IDs[0] = "Z"
	clone.Extra[0].Values[0] = "FR"

	assert.Equal(t, "A", reg.IDs[0])
	assert.Equal(t, "EN", reg.Extra[0].Values[0])

	var nilReg *Registry
	assert.Equal(t, New(), nilReg.Clone())
	assert.Equal(t, 0, nilReg.ActiveCount())
}
