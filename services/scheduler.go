// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// PoolScheduler owns the engine's periodic sweeps. The judge sweep closes
// out elapsed challenges, the matcher sweep pairs entries that arrived
// before a compatible counterpart existed, and the expiry sweep retires
// entries whose match deadline has passed.
type PoolScheduler struct {
	Matcher *MatcherService
	Judge   *JudgeService
	Entries *EntryService
}

func NewPoolScheduler(matcher *MatcherService, judge *JudgeService, entries *EntryService) *PoolScheduler {
	return &PoolScheduler{Matcher: matcher, Judge: judge, Entries: entries}
}

func (s *PoolScheduler) Start(ctx context.Context) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 2 minutes: judge challenges past their end date
	_, _ = sched.NewJob(
		gocron.DurationJob(2*time.Minute),
		gocron.NewTask(func() {
			s.Judge.SweepDue(ctx)
		}),
	)

	// Every 5 minutes: re-run matching across the waiting pool
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			s.Matcher.SweepWaiting(ctx)
		}),
	)

	// Every 10 minutes: expire entries past their latest start date
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			s.Entries.ExpireStaleEntries()
		}),
	)

	log.Println("✅ Pool sweeps scheduled (judge 2m, matcher 5m, expiry 10m)")

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("[SCHEDULER] Shutdown error: %v", err)
		}
	}()
}
