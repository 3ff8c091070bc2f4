// Package mailer renders and delivers account emails.
//
// Templates are written in markdown. The rendered markdown is the plain text
// part of a message and goldmark turns it into the HTML part. A Dispatcher
// queues messages on a worker pool so request handlers never wait on the
// relay; delivery failures are logged and counted in the taskhub_emails_sent_total metric.
//
//	d := mailer.NewDispatcher(ctx, smtpMailer, mailer.DispatcherConfig{BaseURI: cfg.BaseURI}, logger, metrics)
//	d.SendVerification(ctx, user.Email, user.Username, rawToken)
package mailer
