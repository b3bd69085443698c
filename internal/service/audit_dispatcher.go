package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/jobs"
)

// AuditDispatcher writes audit entries from a background queue so request
// handlers do not wait on the insert.
type AuditDispatcher struct {
	queue *jobs.Queue[*models.AuditLog]
}

// NewAuditDispatcher wraps store with a worker queue. Call Start and Stop
// around the server lifetime.
func NewAuditDispatcher(store auditRecorder, logger *zap.Logger) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	queue := jobs.New("audit", func(ctx context.Context, entry *models.AuditLog) error {
		return store.CreateAuditLog(ctx, entry)
	}, jobs.Config{Workers: 2, BufferSize: 256, MaxRetries: 2, Logger: logger})
	return &AuditDispatcher{queue: queue}
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) { d.queue.Start(ctx) }

// Stop flushes buffered entries.
func (d *AuditDispatcher) Stop() { d.queue.Stop() }

// CreateAuditLog enqueues entry; the error only reports a full or stopped queue.
func (d *AuditDispatcher) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return d.queue.Submit(ctx, entry)
}
