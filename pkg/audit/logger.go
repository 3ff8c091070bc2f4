package audit

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/async"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log persists an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// LogrusLogger writes audit events as structured log lines
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates an audit logger backed by logrus
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Log writes the event at info level, or warn level for denials and failures
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.ProjectID != nil {
		fields["project_id"] = *event.ProjectID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	if event.IPAddress != "" {
		fields["ip"] = event.IPAddress
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *LogrusLogger) Close() error {
	return nil
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }

// Recorder is the fire-and-forget front end used by request handlers.
// Events are written on a small worker pool so a slow audit store never
// holds up a response. A failed write is logged and never surfaces to the
// caller. A nil Recorder records nothing.
type Recorder struct {
	logger Logger
	log    *logrus.Logger
	pool   *async.WorkerPool
}

const (
	recorderWorkers = 2
	recorderQueue   = 256
	recorderTimeout = 5 * time.Second
)

// NewRecorder creates a recorder writing to logger and reporting write
// failures to log
func NewRecorder(logger Logger, log *logrus.Logger) *Recorder {
	if logger == nil {
		logger = NopLogger{}
	}
	var poolLog logrus.FieldLogger
	if log != nil {
		poolLog = log
	}
	return &Recorder{
		logger: logger,
		log:    log,
		pool:   async.NewWorkerPool(context.Background(), poolLog, recorderWorkers, recorderQueue, "audit", recorderTimeout),
	}
}

// Record queues event for writing. When the queue is full the event is
// written inline rather than dropped.
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if r == nil || event == nil {
		return
	}
	queued := *event
	queued.Metadata = maps.Clone(event.Metadata)

	err := r.pool.Submit(func(ctx context.Context) error {
		r.write(ctx, &queued)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, async.ErrQueueFull):
		r.write(context.WithoutCancel(ctx), &queued)
	default:
		if r.log != nil {
			r.log.WithError(err).WithField("event_type", event.EventType).Warn("audit event dropped")
		}
	}
}

func (r *Recorder) write(ctx context.Context, event *Event) {
	if err := r.logger.Log(ctx, event); err != nil && r.log != nil {
		r.log.WithError(err).WithField("event_type", event.EventType).Warn("failed to write audit event")
	}
}

// Shutdown drains queued events and closes the underlying logger
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	drainErr := r.pool.Shutdown(ctx)
	return errors.Join(drainErr, r.logger.Close())
}
