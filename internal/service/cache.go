package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pharmarota/internal/models"
)

const catalogCacheKey = "pharmarota:catalog"

// Catalog is the reference-data snapshot one operation works from. Loaded
// once per call and passed by value into the engine; the engine never reads
// shared mutable state.
type Catalog struct {
	Requirements []models.DutyRequirement `json:"requirements"`
	Clinics      []models.ClinicSlot      `json:"clinics"`
}

// CatalogCache is an optional redis read-through cache for the requirement
// and clinic catalogs. Reference data changes rarely and is owned elsewhere;
// a short TTL is the freshness contract.
type CatalogCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCatalogCache returns a cache over rdb, or nil when rdb is nil or the
// TTL is not positive, so callers can wire it unconditionally.
func NewCatalogCache(rdb *redis.Client, ttl time.Duration) *CatalogCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &CatalogCache{rdb: rdb, ttl: ttl}
}

func (c *CatalogCache) read(ctx context.Context, out *Catalog) bool {
	if c == nil {
		return false
	}
	val, err := c.rdb.Get(ctx, catalogCacheKey).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *CatalogCache) write(ctx context.Context, catalog *Catalog) {
	if c == nil {
		return
	}
	data, err := json.Marshal(catalog)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, catalogCacheKey, data, c.ttl).Err()
}

// Invalidate drops the cached snapshot; called by reference-data writers.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	_ = c.rdb.Del(ctx, catalogCacheKey).Err()
}

// loadCatalog returns the reference-data snapshot, from redis when fresh,
// from the store otherwise.
func (s *RotaService) loadCatalog(ctx context.Context) (*Catalog, error) {
	var catalog Catalog
	if s.cache.read(ctx, &catalog) {
		return &catalog, nil
	}

	reqs, err := s.store.GetActiveRequirements(ctx)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	clinics, err := s.store.GetActiveClinics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clinics: %w", err)
	}
	catalog = Catalog{Requirements: reqs, Clinics: clinics}
	s.cache.write(ctx, &catalog)
	return &catalog, nil
}
