package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/jobs"
	"github.com/garnizeh/intake/pkg/models"
)

// JobType is the jobs queue type used for outbound email.
const JobType = "notify.email"

// Delivery reports what happened to a dispatched message.
type Delivery string

const (
	DeliveryQueued Delivery = "queued"
	DeliverySent   Delivery = "sent"
	DeliveryFailed Delivery = "failed"
)

// Dispatcher hands a message off for delivery. Failures are reported through
// the returned Delivery and never as an error; callers have already committed
// their state change.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) Delivery
}

// Outbox enqueues messages for the worker pool.
type Outbox struct {
	repo        *jobs.Repository
	maxAttempts int
	logger      *slog.Logger
}

var _ Dispatcher = (*Outbox)(nil)

func NewOutbox(repo *jobs.Repository, maxAttempts int, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{repo: repo, maxAttempts: maxAttempts, logger: logger}
}

func (o *Outbox) Dispatch(ctx context.Context, m Message) Delivery {
	if err := m.validate(); err != nil {
		o.logger.WarnContext(ctx, "notification not queued", "subject", m.Subject, "err", err)
		return DeliveryFailed
	}
	id, err := jobs.Enqueue(ctx, o.repo, JobType, m, 100, o.maxAttempts)
	if err != nil {
		o.logger.ErrorContext(ctx, "enqueue notification", "subject", m.Subject, "err", err)
		return DeliveryFailed
	}
	o.logger.DebugContext(ctx, "notification queued", "job_id", id, "subject", m.Subject)
	return DeliveryQueued
}

// Inline sends synchronously. A failed send is logged and recorded as a
// WARNING audit entry.
type Inline struct {
	mailer Mailer
	sink   audit.Sink
	logger *slog.Logger
}

var _ Dispatcher = (*Inline)(nil)

func NewInline(mailer Mailer, sink audit.Sink, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{mailer: mailer, sink: sink, logger: logger}
}

func (d *Inline) Dispatch(ctx context.Context, m Message) Delivery {
	err := d.mailer.Send(ctx, m)
	if err == nil {
		return DeliverySent
	}

	d.logger.WarnContext(ctx, "notification failed", "subject", m.Subject, "err", err)
	category := m.Category
	if category == "" {
		category = "Notification"
	}
	if d.sink != nil {
		entry := audit.Entry{
			Level:    models.LevelWarning,
			Category: category,
			Message:  fmt.Sprintf("Notification '%s' failed: %v", m.Subject, err),
		}
		if aerr := d.sink.Record(ctx, entry); aerr != nil {
			d.logger.ErrorContext(ctx, "record notification failure", "err", aerr)
		}
	}
	return DeliveryFailed
}

// EmailHandler returns the jobs handler that delivers queued messages.
func EmailHandler(mailer Mailer) jobs.Handler {
	return func(ctx context.Context, j *jobs.Job) error {
		var m Message
		if err := j.Decode(&m); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		return mailer.Send(ctx, m)
	}
}
