package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/async"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	// BaseURI is the public URL links in emails point to
	BaseURI string
	Product string
	Workers int
	Queue   int
	Timeout time.Duration
}

// Dispatcher renders account emails and delivers them in the background.
// Delivery failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	mailer  Mailer
	pool    *async.WorkerPool
	config  DispatcherConfig
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewDispatcher starts a Dispatcher backed by a worker pool
func NewDispatcher(ctx context.Context, m Mailer, cfg DispatcherConfig, logger *logrus.Logger, metrics *observability.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Product == "" {
		cfg.Product = "TaskHub"
	}
	cfg.BaseURI = strings.TrimRight(cfg.BaseURI, "/")

	return &Dispatcher{
		mailer:  m,
		pool:    async.NewWorkerPool(ctx, logger, cfg.Workers, cfg.Queue, "mail", cfg.Timeout),
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// VerificationLink is the URL a user opens to verify their email
func (d *Dispatcher) VerificationLink(token string) string {
	return d.config.BaseURI + "/api/v1/auth/verify/email/" + url.PathEscape(token)
}

// PasswordResetLink is the URL a user opens to reset their password
func (d *Dispatcher) PasswordResetLink(token string) string {
	return d.config.BaseURI + "/api/v1/auth/password/reset/" + url.PathEscape(token)
}

// SendVerification queues the email verification message
func (d *Dispatcher) SendVerification(ctx context.Context, email, username, token string) {
	d.dispatch(TemplateEmailVerification, email, ActionData{
		Product:  d.config.Product,
		Username: username,
		Link:     d.VerificationLink(token),
	})
}

// SendPasswordReset queues the password reset message
func (d *Dispatcher) SendPasswordReset(ctx context.Context, email, username, token string) {
	d.dispatch(TemplatePasswordReset, email, ActionData{
		Product:  d.config.Product,
		Username: username,
		Link:     d.PasswordResetLink(token),
	})
}

func (d *Dispatcher) dispatch(template, to string, data ActionData) {
	log := d.logger.WithFields(logrus.Fields{"template": template, "to": to})

	msg, err := Render(template, to, data)
	if err != nil {
		log.WithError(err).Error("failed to render email")
		d.metrics.RecordEmail(template, "failed")
		return
	}

	err = d.pool.Submit(func(ctx context.Context) error {
		if err := d.mailer.Send(ctx, msg); err != nil {
			d.metrics.RecordEmail(template, "failed")
			return fmt.Errorf("failed to send %s email: %w", template, err)
		}
		d.metrics.RecordEmail(template, "sent")
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("email dropped")
		d.metrics.RecordEmail(template, "dropped")
	}
}

// Shutdown waits for queued emails to be delivered
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}
