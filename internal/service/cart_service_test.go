package service

import (
	"context"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartAddIncrementsQuantity(t *testing.T) {
	store := newMemStore()
	p := store.addProduct("Plugin", "10")
	svc := NewCartService(store)
	ctx := context.Background()

	_, err := svc.Add(ctx, bob, p.ID, 1)
	require.NoError(t, err)
	item, err := svc.Add(ctx, bob, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	items, err := svc.Items(ctx, bob)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestCartValidation(t *testing.T) {
	store := newMemStore()
	p := store.addProduct("Plugin", "10")
	svc := NewCartService(store)
	ctx := context.Background()

	_, err := svc.Add(ctx, bob, p.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Add(ctx, bob, "", 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Add(ctx, bob, "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Add(ctx, models.User{}, p.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	_, err = svc.Update(ctx, bob, p.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	items, _ := svc.Items(ctx, bob)
	assert.Empty(t, items)
}

func TestCartUpdate(t *testing.T) {
	store := newMemStore()
	p := store.addProduct("Plugin", "10")
	svc := NewCartService(store)
	ctx := context.Background()

	_, err := svc.Add(ctx, bob, p.ID, 1)
	require.NoError(t, err)

	item, err := svc.Update(ctx, bob, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)

	item, err = svc.Update(ctx, bob, p.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, item)

	items, _ := svc.Items(ctx, bob)
	assert.Empty(t, items)

	// Removing an absent line is not an error.
	assert.NoError(t, svc.Remove(ctx, bob, p.ID))
}

func TestWishlistAddIsIdempotent(t *testing.T) {
	store := newMemStore()
	p := store.addProduct("Plugin", "10")
	svc := NewWishlistService(store)
	ctx := context.Background()

	first, err := svc.Add(ctx, bob, p.ID)
	require.NoError(t, err)
	second, err := svc.Add(ctx, bob, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	items, _ := svc.Items(ctx, bob)
	assert.Len(t, items, 1)

	require.NoError(t, svc.Remove(ctx, bob, p.ID))
	items, _ = svc.Items(ctx, bob)
	assert.Empty(t, items)

	_, err = svc.Add(ctx, bob, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Items(ctx, models.User{})
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}
