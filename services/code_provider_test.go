package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"event-gamification-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newContentDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CodeDefinition{}))
	return db
}

func TestGormCodeProviderLookup(t *testing.T) {
	db := newContentDB(t)
	def := &models.CodeDefinition{
		ID:         "booth-1",
		Type:       models.AchievementTypeActivity,
		Name:       "Visited booth 1",
		Points:     10,
		ExpiryDate: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(def).Error)

	provider := &GormCodeProvider{DB: db}

	got, err := provider.Lookup(context.Background(), "booth-1")
	require.NoError(t, err)
	require.Equal(t, "Visited booth 1", got.Name)

	_, err = provider.Lookup(context.Background(), "no-such-code")
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestGormCodeProviderUnavailable(t *testing.T) {
	db := newContentDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	provider := &GormCodeProvider{DB: db}

	// a dead connection must not masquerade as an unknown code
	_, err = provider.Lookup(context.Background(), "booth-1")
	require.ErrorIs(t, err, ErrContentUnavailable)
	require.False(t, errors.Is(err, ErrCodeNotFound))
}

type countingProvider struct {
	calls int
	defs  map[string]*models.CodeDefinition
	err   error
}

func (c *countingProvider) Lookup(ctx context.Context, id string) (*models.CodeDefinition, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	def, ok := c.defs[id]
	if !ok {
		return nil, ErrCodeNotFound
	}
	copied := *def
	return &copied, nil
}

func TestCachedCodeProviderServesFromCache(t *testing.T) {
	inner := &countingProvider{defs: map[string]*models.CodeDefinition{
		"booth-1": {ID: "booth-1", Name: "Visited booth 1"},
	}}
	cached := NewCachedCodeProvider(inner, time.Hour)

	for i := 0; i < 5; i++ {
		got, err := cached.Lookup(context.Background(), "booth-1")
		require.NoError(t, err)
		require.Equal(t, "booth-1", got.ID)
	}
	require.Equal(t, 1, inner.calls)
}

func TestCachedCodeProviderRefetchesAfterTTL(t *testing.T) {
	inner := &countingProvider{defs: map[string]*models.CodeDefinition{
		"booth-1": {ID: "booth-1"},
	}}
	// zero TTL: every entry is immediately stale
	cached := NewCachedCodeProvider(inner, 0)

	for i := 0; i < 3; i++ {
		_, err := cached.Lookup(context.Background(), "booth-1")
		require.NoError(t, err)
	}
	require.Equal(t, 3, inner.calls)
}

func TestCachedCodeProviderCachesNotFound(t *testing.T) {
	inner := &countingProvider{defs: map[string]*models.CodeDefinition{}}
	cached := NewCachedCodeProvider(inner, time.Hour)

	for i := 0; i < 4; i++ {
		_, err := cached.Lookup(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrCodeNotFound)
	}
	require.Equal(t, 1, inner.calls)
}

func TestCachedCodeProviderNeverCachesUnavailability(t *testing.T) {
	inner := &countingProvider{err: ErrContentUnavailable}
	cached := NewCachedCodeProvider(inner, time.Hour)

	_, err := cached.Lookup(context.Background(), "booth-1")
	require.ErrorIs(t, err, ErrContentUnavailable)

	// the failure was not cached: recovery is visible on the next call
	inner.err = nil
	inner.defs = map[string]*models.CodeDefinition{"booth-1": {ID: "booth-1"}}
	got, err := cached.Lookup(context.Background(), "booth-1")
	require.NoError(t, err)
	require.Equal(t, "booth-1", got.ID)
	require.Equal(t, 2, inner.calls)
}

func TestCachedCodeProviderReturnsCopies(t *testing.T) {
	inner := &countingProvider{defs: map[string]*models.CodeDefinition{
		"booth-1": {ID: "booth-1", Name: "Original"},
	}}
	cached := NewCachedCodeProvider(inner, time.Hour)

	first, err := cached.Lookup(context.Background(), "booth-1")
	require.NoError(t, err)
	first.Name = "Mutated"

	second, err := cached.Lookup(context.Background(), "booth-1")
	require.NoError(t, err)
	require.Equal(t, "Original", second.Name)
}
