// Package sync reconciles external calendars into local storage.
package sync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/church-connect/backend/internal/availability"
	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

// Options bound a batch run. Zero values fall back to the defaults below.
type Options struct {
	// Staleness is the minimum elapsed time before a connection is due
	// for re-sync.
	Staleness time.Duration
	// LookbackDays / LookaheadDays bound the event window around now.
	LookbackDays  int
	LookaheadDays int
	// Concurrency caps how many connections sync in parallel so a batch
	// cannot overwhelm remote APIs.
	Concurrency int
	// ConnectionTimeout bounds each connection's provider calls so one
	// slow provider cannot stall the whole batch.
	ConnectionTimeout time.Duration
	// PauseAfterFailures pauses a connection after this many consecutive
	// failed attempts.
	PauseAfterFailures int
}

func (o Options) withDefaults() Options {
	if o.Staleness <= 0 {
		o.Staleness = 15 * time.Minute
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = 30
	}
	if o.LookaheadDays <= 0 {
		o.LookaheadDays = 90
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = 60 * time.Second
	}
	if o.PauseAfterFailures <= 0 {
		o.PauseAfterFailures = 5
	}
	return o
}

// Errors returned by SyncNow so handlers can map them to status codes.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionBusy     = errors.New("connection is paused or already syncing")
)

// Notifier receives per-connection sync outcomes for live dashboards.
type Notifier interface {
	SyncCompleted(result models.SyncResult)
	SyncError(result models.SyncResult)
	ConflictsDetected(userID string, count int)
}

// Orchestrator runs batch syncs across due connections.
type Orchestrator struct {
	connections *storage.ConnectionRepository
	events      *storage.EventRepository
	engine      *availability.Engine
	registry    *provider.Registry
	notifier    Notifier
	opts        Options
}

// NewOrchestrator creates a sync orchestrator. notifier may be nil.
func NewOrchestrator(
	connections *storage.ConnectionRepository,
	events *storage.EventRepository,
	engine *availability.Engine,
	registry *provider.Registry,
	notifier Notifier,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		connections: connections,
		events:      events,
		engine:      engine,
		registry:    registry,
		notifier:    notifier,
		opts:        opts.withDefaults(),
	}
}

// RunDueSyncs processes every connection whose last sync is older than the
// staleness window. Connections are claimed first so overlapping runs
// (e.g. two cron triggers) cannot double-process the same connection, then
// synced independently: one connection's failure never aborts the rest.
func (o *Orchestrator) RunDueSyncs(ctx context.Context, now time.Time) (*models.BatchResult, error) {
	batch := &models.BatchResult{
		Results:   []models.SyncResult{},
		StartedAt: now,
	}

	due, err := o.connections.ListDue(ctx, now, o.opts.Staleness)
	if err != nil {
		return nil, err
	}

	sem := make(chan struct{}, o.opts.Concurrency)
	results := make(chan models.SyncResult, len(due))
	var wg sync.WaitGroup

	for i := range due {
		conn := due[i]

		claimed, err := o.connections.Claim(ctx, conn.ID)
		if err != nil {
			log.Printf("Failed to claim connection %s: %v", conn.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- o.syncConnection(ctx, &conn, now)
		}()
	}

	wg.Wait()
	close(results)

	for result := range results {
		batch.Results = append(batch.Results, result)
	}
	batch.ConnectionsProcessed = len(batch.Results)
	batch.FinishedAt = time.Now().UTC()

	return batch, nil
}

// SyncNow claims and syncs a single connection immediately, regardless of
// staleness. Used by the manual trigger endpoint.
func (o *Orchestrator) SyncNow(ctx context.Context, connectionID string) (*models.SyncResult, error) {
	conn, err := o.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}

	claimed, err := o.connections.Claim(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrConnectionBusy
	}

	result := o.syncConnection(ctx, conn, time.Now().UTC())
	return &result, nil
}

// syncConnection fetches one connection's remote events, upserts them, and
// refreshes the user's conflicts. The connection row absorbs the outcome:
// last_sync_at always advances so a failing connection is not retried in a
// tight loop.
func (o *Orchestrator) syncConnection(ctx context.Context, conn *models.SyncConnection, now time.Time) models.SyncResult {
	result := models.SyncResult{
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		UserID:       conn.UserID,
	}

	windowStart := now.AddDate(0, 0, -o.opts.LookbackDays)
	windowEnd := now.AddDate(0, 0, o.opts.LookaheadDays)

	synced, err := o.fetchAndStore(ctx, conn, windowStart, windowEnd)
	result.EventsSynced = synced

	if err != nil {
		msg := err.Error()
		result.Status = models.SyncStatusError
		result.Error = &msg
		if markErr := o.connections.MarkFailure(ctx, conn.ID, msg, now, o.opts.PauseAfterFailures); markErr != nil {
			log.Printf("Failed to record sync failure for %s: %v", conn.ID, markErr)
		}
		log.Printf("Sync failed for connection %s (%s): %v", conn.ID, conn.Provider, err)
		if o.notifier != nil {
			o.notifier.SyncError(result)
		}
		return result
	}

	result.Status = models.SyncStatusActive
	if err := o.connections.MarkSuccess(ctx, conn.ID, now); err != nil {
		log.Printf("Failed to record sync success for %s: %v", conn.ID, err)
	}

	conflicts, err := o.engine.DetectConflicts(ctx, conn.UserID, windowStart, windowEnd)
	if err != nil {
		log.Printf("Conflict detection failed for user %s: %v", conn.UserID, err)
	} else if len(conflicts) > 0 && o.notifier != nil {
		o.notifier.ConflictsDetected(conn.UserID, len(conflicts))
	}

	log.Printf("Synced connection %s (%s): %d events", conn.ID, conn.Provider, synced)
	if o.notifier != nil {
		o.notifier.SyncCompleted(result)
	}
	return result
}

// fetchAndStore lists remote events under the per-connection timeout and
// upserts them keyed by (connection, external id), last-write-wins.
func (o *Orchestrator) fetchAndStore(ctx context.Context, conn *models.SyncConnection, start, end time.Time) (int, error) {
	adapter, err := o.registry.Get(conn.Provider)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.ConnectionTimeout)
	defer cancel()

	remote, err := adapter.ListEvents(callCtx, conn, start, end)
	if err != nil {
		return 0, err
	}

	synced := 0
	for i := range remote {
		ev := toCalendarEvent(conn, &remote[i])
		if err := o.events.Upsert(ctx, ev); err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

func toCalendarEvent(conn *models.SyncConnection, remote *provider.RemoteEvent) *models.CalendarEvent {
	ev := &models.CalendarEvent{
		ConnectionID: conn.ID,
		ExternalID:   remote.ExternalID,
		UserID:       conn.UserID,
		Title:        remote.Title,
		StartTime:    remote.StartTime,
		EndTime:      remote.EndTime,
		AllDay:       remote.AllDay,
		Attendees:    remote.Attendees,
		Status:       remote.Status,
	}
	if remote.Description != "" {
		ev.Description = &remote.Description
	}
	if remote.Location != "" {
		ev.Location = &remote.Location
	}
	if remote.RecurrenceRule != "" {
		ev.RecurrenceRule = &remote.RecurrenceRule
	}
	return ev
}
