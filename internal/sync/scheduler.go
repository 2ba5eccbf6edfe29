package sync

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers periodic batch sync runs.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	interval     time.Duration
}

// NewScheduler creates a scheduler that runs the orchestrator every
// interval (default 5 minutes; due connections are filtered by the
// staleness window, so running often is cheap).
func NewScheduler(orchestrator *Orchestrator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		cron:         cron.New(),
		orchestrator: orchestrator,
		interval:     interval,
	}
}

// Start begins periodic sync runs.
func (s *Scheduler) Start() error {
	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, s.runBatch); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("Sync scheduler started (every %s)", s.interval)
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running batch.
func (s *Scheduler) Stop() {
	log.Println("Stopping sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Sync scheduler stopped")
}

// NextRun returns the next scheduled batch time, or nil before Start.
func (s *Scheduler) NextRun() *time.Time {
	for _, entry := range s.cron.Entries() {
		if !entry.Next.IsZero() {
			next := entry.Next
			return &next
		}
	}
	return nil
}

func (s *Scheduler) runBatch() {
	ctx := context.Background()
	batch, err := s.orchestrator.RunDueSyncs(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Batch sync failed: %v", err)
		return
	}
	log.Printf("Batch sync completed: %d connections processed", batch.ConnectionsProcessed)
}
