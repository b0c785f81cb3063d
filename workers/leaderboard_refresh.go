package workers

import (
	"context"
	"log"
	"time"

	"event-gamification-system/services"
)

// PollLeaderboard keeps the leaderboard snapshot warm in the
// background, so the first reader after a quiet period doesn't pay for
// a full store pass. Stops when ctx is cancelled.
func PollLeaderboard(ctx context.Context, svc *services.LeaderboardService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LeaderboardWorker] Stopping")
			return
		case <-ticker.C:
			if err := svc.Refresh(ctx); err != nil {
				log.Printf("[LeaderboardWorker] Refresh failed: %v", err)
			}
		}
	}
}
