package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/org/servercatalog/pkg/models"
)

// MemoryStore is a mutex-guarded in-memory Repository. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	products []models.Product
	nextID   int
	baseURL  string
	now      func() time.Time
}

// NewMemoryStore returns a store pre-seeded with the two default offerings.
// Self links are built as <baseURL>/productos/<id>.
func NewMemoryStore(baseURL string) *MemoryStore {
	s := &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
	s.products = []models.Product{
		{
			ID:          1,
			Title:       "Servidor VPS Básico",
			Description: "Servidor VPS con recursos básicos para proyectos pequeños",
			Price:       9990,
			Cores:       1,
			Memory:      1,
			Disk:        20,
			Cluster:     "Cluster Norte",
			Status:      models.StatusActive,
			CreatedAt:   time.Date(2023, 11, 4, 14, 30, 0, 0, time.UTC),
			Self:        s.link(1),
		},
		{
			ID:          2,
			Title:       "Servidor VPS Avanzado",
			Description: "Servidor VPS con más recursos para aplicaciones medianas",
			Price:       12990,
			Cores:       2,
			Memory:      2,
			Disk:        50,
			Cluster:     "Cluster Sur",
			Status:      models.StatusActive,
			CreatedAt:   time.Date(2023, 11, 5, 10, 0, 0, 0, time.UTC),
			Self:        s.link(2),
		},
	}
	s.nextID = 3
	return s
}

func (s *MemoryStore) link(id int) models.Link {
	return models.Link{Link: fmt.Sprintf("%s/productos/%d", s.baseURL, id)}
}

func (s *MemoryStore) List(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := s.products[i]
	return &p, nil
}

// Create assigns the next sequential id. Ids are never reused.
func (s *MemoryStore) Create(_ context.Context, d models.ProductDraft) (*models.Product, error) {
	if d.Status == "" {
		d.Status = models.StatusActive
	}
	p := models.Product{
		Title:       d.Title,
		Description: d.Description,
		Price:       d.Price,
		Cores:       d.Cores,
		Memory:      d.Memory,
		Disk:        d.Disk,
		Cluster:     d.Cluster,
		Status:      d.Status,
	}
	if err := checkInvariants(&p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID
	s.nextID++
	p.CreatedAt = s.now().UTC()
	p.Self = s.link(p.ID)
	s.products = append(s.products, p)
	return &p, nil
}

// Update merges patch into the stored product. Id, creation time and self
// link are never changed.
func (s *MemoryStore) Update(_ context.Context, id int, patch models.ProductPatch) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := s.products[i]
	applyPatch(&p, patch)
	if err := checkInvariants(&p); err != nil {
		return nil, err
	}
	s.products[i] = p
	return &p, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.products = append(s.products[:i], s.products[i+1:]...)
	return nil
}

// FindByTitle returns products whose title contains term, ignoring case.
func (s *MemoryStore) FindByTitle(_ context.Context, term string) ([]models.Product, error) {
	term = strings.ToLower(term)
	return s.filter(func(p models.Product) bool {
		return strings.Contains(strings.ToLower(p.Title), term)
	}), nil
}

func (s *MemoryStore) FindByStatus(_ context.Context, status string) ([]models.Product, error) {
	return s.filter(func(p models.Product) bool { return p.Status == status }), nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

func (s *MemoryStore) filter(keep func(models.Product) bool) []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Product{}
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *MemoryStore) indexOf(id int) int {
	for i, p := range s.products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func applyPatch(p *models.Product, patch models.ProductPatch) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Cores != nil {
		p.Cores = *patch.Cores
	}
	if patch.Memory != nil {
		p.Memory = *patch.Memory
	}
	if patch.Disk != nil {
		p.Disk = *patch.Disk
	}
	if patch.Cluster != nil {
		p.Cluster = *patch.Cluster
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
}

func checkInvariants(p *models.Product) error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidProduct)
	case p.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Cores <= 0, p.Memory <= 0, p.Disk <= 0:
		return fmt.Errorf("%w: cores, memory and disk must be positive", ErrInvalidProduct)
	case !models.IsValidStatus(p.Status):
		return fmt.Errorf("%w: unknown status %q", ErrInvalidProduct, p.Status)
	}
	return nil
}
