package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"event-gamification-system/models"
	"event-gamification-system/stores"

	"golang.org/x/sync/singleflight"
)

// LeaderboardEntry is one row of the points standings.
type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	Points          int    `json:"points"`
	Accomplishments int    `json:"accomplishments"`
}

// LeaderboardService serves a read-side view of the standings from a
// TTL'd snapshot with single-flight refresh, so a stampede of readers
// costs one store pass per TTL. The snapshot source is the injected
// store, not a package-level cache.
type LeaderboardService struct {
	store stores.AccomplishmentStore
	ttl   time.Duration

	group     singleflight.Group
	mu        sync.Mutex
	snapshot  []LeaderboardEntry
	fetchedAt time.Time
}

func NewLeaderboardService(store stores.AccomplishmentStore, ttl time.Duration) *LeaderboardService {
	return &LeaderboardService{store: store, ttl: ttl}
}

// Top returns up to limit entries, refreshing the snapshot if stale.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	fresh := time.Since(s.fetchedAt) < s.ttl && s.snapshot != nil
	snapshot := s.snapshot
	s.mu.Unlock()

	if !fresh {
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		snapshot = s.snapshot
		s.mu.Unlock()
	}

	if limit <= 0 || limit > len(snapshot) {
		limit = len(snapshot)
	}
	out := make([]LeaderboardEntry, limit)
	copy(out, snapshot[:limit])
	return out, nil
}

// Refresh rebuilds the snapshot from the store. Concurrent callers
// share one rebuild.
func (s *LeaderboardService) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("leaderboard", func() (interface{}, error) {
		type tally struct {
			email  string
			points int
			count  int
		}
		totals := make(map[string]*tally)

		for _, typ := range []models.AchievementType{
			models.AchievementTypeActivity,
			models.AchievementTypeSocial,
			models.AchievementTypeCTFFlag,
		} {
			records, err := s.store.ListByType(ctx, typ)
			if err != nil {
				return nil, err
			}
			for _, rec := range records {
				t := totals[rec.UserID]
				if t == nil {
					t = &tally{email: rec.UserEmail}
					totals[rec.UserID] = t
				}
				t.points += rec.Points
				t.count++
			}
		}

		entries := make([]LeaderboardEntry, 0, len(totals))
		for userID, t := range totals {
			entries = append(entries, LeaderboardEntry{
				UserID:          userID,
				Email:           t.email,
				Points:          t.points,
				Accomplishments: t.count,
			})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Points != entries[j].Points {
				return entries[i].Points > entries[j].Points
			}
			return entries[i].UserID < entries[j].UserID
		})
		for i := range entries {
			entries[i].Rank = i + 1
		}

		s.mu.Lock()
		s.snapshot = entries
		s.fetchedAt = time.Now()
		s.mu.Unlock()
		return nil, nil
	})
	return err
}
