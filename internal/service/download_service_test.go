package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedVersion(t *testing.T, store *memStore, p *models.Product, file string) *models.ProductVersion {
	t.Helper()
	v := &models.ProductVersion{ProductID: p.ID, Version: "1.0", Date: time.Now()}
	require.NoError(t, store.AddVersion(context.Background(), v))
	if file != "" {
		require.NoError(t, store.SetVersionFile(context.Background(), v.ID, file, 1024))
	}
	return v
}

func TestDownloadRequiresPurchase(t *testing.T) {
	store := newMemStore()
	events := &memEvents{}
	svc := NewDownloadService(store, &memFiles{}, events, 0)
	p := store.addProduct("Paid Plugin", "20")
	v := seedVersion(t, store, p, "products/p/v/plugin.zip")
	ctx := context.Background()

	_, err := svc.Link(ctx, bob, v.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	store.purchased[bob.ID+"|"+p.ID] = true
	link, err := svc.Link(ctx, bob, v.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "products/p/v/plugin.zip")
	assert.Contains(t, link.URL, "expires=300")
	assert.Equal(t, int64(1024), link.FileSize)
	assert.WithinDuration(t, time.Now().Add(DefaultDownloadExpiry), link.ExpiresAt, 5*time.Second)

	require.Len(t, events.downloaded, 1)
	assert.Equal(t, p.ID, events.downloaded[0].ProductID)
	assert.Equal(t, v.ID, events.downloaded[0].VersionID)
}

func TestDownloadFreeAndAdmin(t *testing.T) {
	store := newMemStore()
	svc := NewDownloadService(store, &memFiles{}, nil, time.Minute)
	free := store.addProduct("Free", "0")
	paid := store.addProduct("Paid", "5")
	fv := seedVersion(t, store, free, "free.zip")
	pv := seedVersion(t, store, paid, "paid.zip")
	ctx := context.Background()

	_, err := svc.Link(ctx, bob, fv.ID)
	assert.NoError(t, err)

	admin := models.User{ID: "u-root", Role: models.RoleAdmin}
	_, err = svc.Link(ctx, admin, pv.ID)
	assert.NoError(t, err)

	_, err = svc.Link(ctx, models.User{}, fv.ID)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestDownloadMissingFile(t *testing.T) {
	store := newMemStore()
	svc := NewDownloadService(store, &memFiles{}, nil, 0)
	free := store.addProduct("Free", "0")
	v := seedVersion(t, store, free, "")

	_, err := svc.Link(context.Background(), bob, v.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Link(context.Background(), bob, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
