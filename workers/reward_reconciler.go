package workers

import (
	"context"
	"log"
	"time"

	"pool-challenge-system/services"
)

// PollPendingGrants re-drives reward grants whose XP credit never landed,
// e.g. because the process died between judgement and settlement or the
// progression write failed. Settlement is idempotent (conditional claim on
// the grant row), so overlapping runs are harmless.
func PollPendingGrants(ctx context.Context, judge *services.JudgeService, pollInterval time.Duration) {
	log.Println("Starting reward grant reconciler...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reward grant reconciler stopped.")
			return
		case <-ticker.C:
			settled, err := judge.SettlePendingGrants()
			if err != nil {
				log.Printf("❌ Error reconciling reward grants: %v", err)
				continue
			}
			if settled > 0 {
				log.Printf("📥 Reconciled %d pending reward grant(s).", settled)
			}
		}
	}
}
