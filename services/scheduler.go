// services/scheduler.go
package services

import (
	"context"
	"log"

	"event-gamification-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartQuotaResetScheduler restores every participant's connect-scan
// allotment once a day at midnight. This is the only way a quota
// counter ever goes up: an explicit, dated reset, never a silent refill.
func (s *ClaimService) StartQuotaResetScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(func() {
			touched, err := s.Users.ResetQuota(context.Background(), models.QuotaConnectScans, models.DefaultConnectScanAllotment)
			if err != nil {
				log.Printf("[Scheduler] Connect allotment reset failed: %v", err)
				return
			}
			log.Printf("✅ [Scheduler] Connect allotment reset to %d for %d participants", models.DefaultConnectScanAllotment, touched)
		}),
	)
}
