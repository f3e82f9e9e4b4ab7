package favorites_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/service/favorites"
	"github.com/vladislavdragonenkov/digidine/internal/storage/memory"
)

func TestRestaurants_DoubleAddKeepsSingleEntry(t *testing.T) {
	ctx := context.Background()
	restaurants := favorites.NewRestaurants(memory.NewStore("test"), nil)

	_, err := restaurants.Add(ctx, "r1")
	require.NoError(t, err)
	_, err = restaurants.Add(ctx, "r1")
	require.NoError(t, err)

	ids, err := restaurants.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, ids)
}

func TestIDSet_PreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	dishes := favorites.NewDishes(memory.NewStore("test"), nil)

	for _, id := range []string{"d3", "d1", "d2", "d1"} {
		_, err := dishes.Add(ctx, id)
		require.NoError(t, err)
	}

	ids, err := dishes.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"d3", "d1", "d2"}, ids)

	ids, err = dishes.Remove(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, []string{"d3", "d2"}, ids)

	saved, err := dishes.IsSaved(ctx, "d1")
	require.NoError(t, err)
	require.False(t, saved)
	saved, err = dishes.IsSaved(ctx, "d2")
	require.NoError(t, err)
	require.True(t, saved)
}

func TestIDSet_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("test")
	restaurants := favorites.NewRestaurants(store, nil)
	dishes := favorites.NewDishes(store, nil)

	_, err := restaurants.Add(ctx, "x")
	require.NoError(t, err)

	saved, err := dishes.IsSaved(ctx, "x")
	require.NoError(t, err)
	require.False(t, saved)
}

func TestIDSet_Toggle(t *testing.T) {
	ctx := context.Background()
	restaurants := favorites.NewRestaurants(memory.NewStore("test"), nil)

	saved, err := restaurants.Toggle(ctx, "r7")
	require.NoError(t, err)
	require.True(t, saved)

	saved, err = restaurants.Toggle(ctx, "r7")
	require.NoError(t, err)
	require.False(t, saved)

	ids, err := restaurants.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestIDSet_RejectsEmptyID(t *testing.T) {
	restaurants := favorites.NewRestaurants(memory.NewStore("test"), nil)

	_, err := restaurants.Add(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrSavedIDRequired)
	_, err = restaurants.Toggle(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrSavedIDRequired)
}
