package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompoundExistsAndUseCompound(t *testing.T) {
	ctx := context.Background()
	e, store, _, _, _, _ := newTestEngine()
	store.compounds = append(store.compounds, CompoundGlyph{ID: "CP01", Name: "swap-stake", Components: []string{"X01", "X05"}})

	exists, err := e.CompoundExists(ctx, "CP01")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = e.CompoundExists(ctx, "CP99")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, e.UseCompound(ctx, "CP01"))
	compounds, err := e.Compounds(ctx)
	require.NoError(t, err)
	require.Len(t, compounds, 1)
	require.EqualValues(t, 1, compounds[0].UseCount)
}
