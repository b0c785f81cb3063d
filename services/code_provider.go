package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"event-gamification-system/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Lookup failure modes. A connectivity problem with the content store
// is never reported as ErrCodeNotFound; callers must be able to tell
// "this code doesn't exist" from "I couldn't ask".
var (
	ErrCodeNotFound       = errors.New("code definition not found")
	ErrContentUnavailable = errors.New("content store unavailable")
)

// CodeDefinitionProvider resolves a code id to its definition.
type CodeDefinitionProvider interface {
	Lookup(ctx context.Context, id string) (*models.CodeDefinition, error)
}

// GormCodeProvider reads definitions straight from the content database.
// The content team owns the writes; this side is read-only.
type GormCodeProvider struct {
	DB *gorm.DB
}

func (p *GormCodeProvider) Lookup(ctx context.Context, id string) (*models.CodeDefinition, error) {
	var def models.CodeDefinition
	err := p.DB.WithContext(ctx).First(&def, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	return &def, nil
}

// CachedCodeProvider wraps a provider with a short-TTL cache and
// single-flight refresh, so a popular code being scanned by a crowd
// costs one content-DB read per TTL instead of one per scan. Both hits
// and not-found results are cached; unavailability is never cached.
type CachedCodeProvider struct {
	inner CodeDefinitionProvider
	ttl   time.Duration

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	def       *models.CodeDefinition // nil records a not-found result
	fetchedAt time.Time
}

func NewCachedCodeProvider(inner CodeDefinitionProvider, ttl time.Duration) *CachedCodeProvider {
	return &CachedCodeProvider{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cachedDefinition),
	}
}

func (p *CachedCodeProvider) Lookup(ctx context.Context, id string) (*models.CodeDefinition, error) {
	p.mu.Lock()
	entry, ok := p.cache[id]
	p.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < p.ttl {
		return entry.result()
	}

	v, err, _ := p.group.Do(id, func() (interface{}, error) {
		def, err := p.inner.Lookup(ctx, id)
		if err != nil && !errors.Is(err, ErrCodeNotFound) {
			return nil, err
		}
		fresh := cachedDefinition{def: def, fetchedAt: time.Now()}
		p.mu.Lock()
		p.cache[id] = fresh
		p.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cachedDefinition).result()
}

func (c cachedDefinition) result() (*models.CodeDefinition, error) {
	if c.def == nil {
		return nil, ErrCodeNotFound
	}
	copied := *c.def
	return &copied, nil
}
