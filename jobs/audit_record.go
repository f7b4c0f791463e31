package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ovr-admin/ovr-admin/internal/jobs"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// AuditRecordJob writes queued audit entries to the store.
type AuditRecordJob struct {
	Store   shared.AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob wires the audit writer.
func NewAuditRecordJob(store shared.AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes audit:record tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var payload AuditRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Log.Action == "" || payload.Log.Entity == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskAuditRecord)
	defer func() { err = tracker.End(err) }()

	if err = j.Store.Record(ctx, payload.Log); err != nil {
		logger(j.Logger).Warn("audit record", slog.String("action", payload.Log.Action), slog.Any("error", err))
		return err
	}
	return nil
}

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditSink records audit entries by enqueueing them. When the broker is
// unreachable the entry is written through Fallback, if set.
type AuditSink struct {
	queue    Enqueuer
	fallback shared.AuditRecorder
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

// NewAuditSink builds an AuditSink.
func NewAuditSink(queue Enqueuer, fallback shared.AuditRecorder, metrics *jobmetrics.Metrics, log *slog.Logger) *AuditSink {
	return &AuditSink{queue: queue, fallback: fallback, metrics: metrics, logger: logger(log)}
}

// Record implements shared.AuditRecorder.
func (s *AuditSink) Record(ctx context.Context, log shared.AuditLog) error {
	task, err := NewAuditRecordTask(log)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueContext(ctx, task, asynq.Queue(QueueAudit))
	s.metrics.Enqueued(TaskAuditRecord, err)
	if err == nil {
		return nil
	}
	s.logger.Warn("enqueue audit record", slog.Any("error", err))
	if s.fallback == nil {
		return err
	}
	return s.fallback.Record(ctx, log)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
