package products

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/testutil"
)

func seed(t *testing.T, r *GormRepo, items ...Product) {
	t.Helper()
	for _, p := range items {
		require.NoError(t, r.db.Create(&p).Error)
		if !p.Active {
			// gorm skips zero-value bools on create when a default is set
			require.NoError(t, r.db.Model(&Product{}).Where("id = ?", p.ID).Update("ativo", false).Error)
		}
	}
}

func TestGormRepo(t *testing.T) {
	r := NewGormRepo(testutil.OpenDB(t, &Product{}))
	now := time.Now()
	seed(t, r,
		Product{ID: "p1", Name: "Curso Go", PriceCents: 4990, Active: true, CreatedAt: now},
		Product{ID: "p2", Name: "Ebook", PriceCents: 1990, Active: false, CreatedAt: now.Add(time.Second)},
		Product{ID: "p3", Name: "Mentoria", PriceCents: 19900, Active: true, CreatedAt: now.Add(2 * time.Second)},
	)
	ctx := context.Background()

	list, err := r.ListActive(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p3", list[0].ID)

	p, err := r.GetActive(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4990), p.PriceCents)

	_, err = r.GetActive(ctx, "p2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetActive(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
