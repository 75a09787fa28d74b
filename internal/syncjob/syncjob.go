// Package syncjob periodically mirrors the tracker's tickets into the
// local cache and rebuilds the vector index from fresh embeddings. It
// runs on a cron schedule, independently of request handling.
package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ticketry-io/ticketry/internal/embedding"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// embedBatchSize bounds one embedding API call.
const embedBatchSize = 100

// Source lists the tickets to mirror.
type Source interface {
	SearchIssues(ctx context.Context, jql string, max int) ([]protocol.Ticket, error)
}

// Index receives the freshly embedded corpus.
type Index interface {
	Rebuild(tickets []protocol.Ticket, vectors [][]float32) error
	Persist() error
}

// Cache receives the ticket mirror.
type Cache interface {
	Upsert(tickets []protocol.Ticket) error
}

// Job drives the periodic sync.
type Job struct {
	source   Source
	embedder embedding.Embedder
	index    Index
	cache    Cache
	jql      string
	logger   *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
	synced  int
}

// New creates a sync job over the given collaborators. jql selects
// which tickets are mirrored, typically "project = X ORDER BY updated
// DESC".
func New(source Source, embedder embedding.Embedder, index Index, cache Cache, jql string, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		source:   source,
		embedder: embedder,
		index:    index,
		cache:    cache,
		jql:      jql,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the job at the given interval and blocks until the
// context is cancelled. When onStartup is set, a sync runs immediately
// before the schedule takes over.
func (j *Job) Start(ctx context.Context, interval time.Duration, onStartup bool) error {
	if onStartup {
		if err := j.Run(ctx); err != nil {
			j.logger.Error("startup sync failed", "error", err)
		}
	}

	schedule := fmt.Sprintf("@every %s", interval)
	if _, err := j.cron.AddFunc(schedule, func() {
		if err := j.Run(ctx); err != nil {
			j.logger.Error("scheduled sync failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("syncjob: invalid schedule %q: %w", schedule, err)
	}

	j.cron.Start()
	j.logger.Info("sync job started", "interval", interval.String())

	<-ctx.Done()
	j.cron.Stop()
	j.logger.Info("sync job stopped")
	return ctx.Err()
}

// Run performs one full sync: fetch, embed, rebuild, persist, cache.
// Concurrent runs collapse to one; a second caller returns immediately.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Info("sync already in progress, skipping")
		return nil
	}
	j.running = true
	j.mu.Unlock()

	err := j.sync(ctx)

	j.mu.Lock()
	j.running = false
	j.lastRun = time.Now().UTC()
	j.lastErr = err
	j.mu.Unlock()
	return err
}

func (j *Job) sync(ctx context.Context) error {
	started := time.Now()

	tickets, err := j.source.SearchIssues(ctx, j.jql, 0)
	if err != nil {
		return fmt.Errorf("syncjob: fetch tickets: %w", err)
	}
	j.logger.Info("sync fetched tickets", "count", len(tickets))

	texts := make([]string, len(tickets))
	for i, t := range tickets {
		texts[i] = TicketText(t)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := j.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			// Leave the previous index in place rather than rebuild
			// from a partial corpus.
			return fmt.Errorf("syncjob: embed batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}

	if err := j.index.Rebuild(tickets, vectors); err != nil {
		return fmt.Errorf("syncjob: rebuild index: %w", err)
	}
	if err := j.index.Persist(); err != nil {
		j.logger.Warn("index persist failed, continuing with in-memory index", "error", err)
	}
	if err := j.cache.Upsert(tickets); err != nil {
		j.logger.Warn("ticket cache update failed", "error", err)
	}

	j.mu.Lock()
	j.synced = len(tickets)
	j.mu.Unlock()

	j.logger.Info("sync complete", "tickets", len(tickets), "elapsed", time.Since(started).String())
	return nil
}

// Status reports the last run for the stats endpoint.
func (j *Job) Status() (lastRun time.Time, synced int, lastErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun, j.synced, j.lastErr
}

// TicketText renders a ticket into the flat form that gets embedded.
// Queries embed the user's words alone, so the rendering keeps field
// labels short and puts the summary first.
func TicketText(t protocol.Ticket) string {
	parts := []string{
		"Key: " + t.Key,
		"Summary: " + t.Summary,
	}
	if t.IssueType != "" {
		parts = append(parts, "Type: "+t.IssueType)
	}
	if t.Status != "" {
		parts = append(parts, "Status: "+t.Status)
	}
	if len(t.Labels) > 0 {
		parts = append(parts, "Labels: "+strings.Join(t.Labels, ", "))
	}
	if t.Description != "" {
		parts = append(parts, "Description: "+t.Description)
	}
	return strings.Join(parts, " | ")
}
