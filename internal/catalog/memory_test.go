package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/org/servercatalog/pkg/models"
)

func draft() models.ProductDraft {
	return models.ProductDraft{
		Title:       "Servidor Dedicado",
		Description: "Servidor dedicado para cargas pesadas",
		Price:       49990,
		Cores:       8,
		Memory:      32,
		Disk:        500,
	}
}

func ptr[T any](v T) *T { return &v }

func TestSeededCatalog(t *testing.T) {
	s := NewMemoryStore("https://ejemplo.com/")
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].ID)
	assert.Equal(t, "Servidor VPS Básico", list[0].Title)
	assert.Equal(t, "https://ejemplo.com/productos/2", list[1].Self.Link)
	assert.Equal(t, time.Date(2023, 11, 5, 10, 0, 0, 0, time.UTC), list[1].CreatedAt)
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	s := NewMemoryStore("https://ejemplo.com")
	ctx := context.Background()

	p, err := s.Create(ctx, draft())
	require.NoError(t, err)
	assert.Equal(t, 3, p.ID)
	assert.Equal(t, models.StatusActive, p.Status)
	assert.Equal(t, "https://ejemplo.com/productos/3", p.Self.Link)
	assert.False(t, p.CreatedAt.IsZero())

	require.NoError(t, s.Delete(ctx, 3))
	p, err = s.Create(ctx, draft())
	require.NoError(t, err)
	assert.Equal(t, 4, p.ID, "ids are never reused")
}

func TestCreateRejectsBrokenInvariants(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()

	bad := []func(*models.ProductDraft){
		func(d *models.ProductDraft) { d.Price = -1 },
		func(d *models.ProductDraft) { d.Cores = 0 },
		func(d *models.ProductDraft) { d.Disk = -5 },
		func(d *models.ProductDraft) { d.Status = "retirado" },
		func(d *models.ProductDraft) { d.Title = " " },
	}
	for i, mutate := range bad {
		d := draft()
		mutate(&d)
		_, err := s.Create(ctx, d)
		assert.ErrorIs(t, err, ErrInvalidProduct, "case %d", i)
	}
	n, _ := s.Count(ctx)
	assert.Equal(t, 2, n)
}

func TestUpdateMergesFields(t *testing.T) {
	s := NewMemoryStore("https://ejemplo.com")
	ctx := context.Background()
	before, _ := s.Get(ctx, 1)

	p, err := s.Update(ctx, 1, models.ProductPatch{
		Price:  ptr(10990.0),
		Status: ptr(models.StatusMaintenance),
	})
	require.NoError(t, err)
	assert.Equal(t, 10990.0, p.Price)
	assert.Equal(t, models.StatusMaintenance, p.Status)
	assert.Equal(t, before.Title, p.Title)
	assert.Equal(t, before.CreatedAt, p.CreatedAt)
	assert.Equal(t, before.Self, p.Self)
	assert.Equal(t, 1, p.ID)

	got, _ := s.Get(ctx, 1)
	assert.Equal(t, *p, *got)
}

func TestUpdateInvalidLeavesProductUntouched(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()
	_, err := s.Update(ctx, 2, models.ProductPatch{Memory: ptr(0)})
	assert.ErrorIs(t, err, ErrInvalidProduct)
	got, _ := s.Get(ctx, 2)
	assert.Equal(t, 2, got.Memory)
}

func TestNotFound(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()
	_, err := s.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update(ctx, 999, models.ProductPatch{Price: ptr(1.0)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, 999), ErrNotFound)
}

func TestFindByTitleAndStatus(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()

	found, _ := s.FindByTitle(ctx, "avanzado")
	require.Len(t, found, 1)
	assert.Equal(t, 2, found[0].ID)

	_, _ = s.Update(ctx, 1, models.ProductPatch{Status: ptr(models.StatusInactive)})
	inactive, _ := s.FindByStatus(ctx, models.StatusInactive)
	require.Len(t, inactive, 1)
	assert.Equal(t, 1, inactive[0].ID)

	none, _ := s.FindByStatus(ctx, models.StatusMaintenance)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestConcurrentCreates(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make(chan int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Create(ctx, draft())
			if err == nil {
				ids <- p.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 20)
}
