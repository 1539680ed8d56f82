package database

import (
	"context"
	"testing"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "clicktok", Password: "secret", Database: "clicktok"}
	assert.Equal(t, "postgres://clicktok:secret@db:5432/clicktok?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://clicktok:secret@db:5432/clicktok?sslmode=require", cfg.DSN())

	cfg.URL = "postgres://other/db"
	assert.Equal(t, "postgres://other/db", cfg.DSN())
}

func sampleProduct(id string, sales int64) models.Product {
	return models.Product{
		ID:               id,
		Name:             "Ring Light " + id,
		Price:            19.99,
		CommissionRate:   12,
		CommissionAmount: 2.4,
		Sales:            sales,
		Rating:           4.6,
		Category:         "Electronics",
		AffiliateLink:    "https://www.tiktok.com/shop/product/" + id + "?affiliate=YOUR_ID",
		Status:           models.StatusPending,
		Source:           models.SourceBrowser,
		Technique:        models.TechniqueStructured,
		DiscoveredAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewProductRepository(db)

	id, dup, err := repo.Put(ctx, sampleProduct("1729001", 10))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Positive(t, id)

	_, dup, err = repo.Put(ctx, sampleProduct("1729001", 99))
	require.NoError(t, err)
	assert.True(t, dup, "first stored wins")

	_, _, err = repo.Put(ctx, sampleProduct("1729002", 500))
	require.NoError(t, err)

	got, err := repo.Get(ctx, "1729001")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Sales)
	assert.Equal(t, models.SourceBrowser, got.Source)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	require.NoError(t, repo.UpdateStatus(ctx, "1729001", models.StatusSelected))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", models.StatusPosted), ErrProductNotFound)
	assert.Error(t, repo.UpdateStatus(ctx, "1729001", models.Status("archived")))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1729002", all[0].ID)

	selected, err := repo.List(ctx, ListFilter{Status: models.StatusSelected})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "1729001", selected[0].ID)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusSelected])
	assert.Equal(t, int64(2), stats.BySource[models.SourceBrowser])
}
