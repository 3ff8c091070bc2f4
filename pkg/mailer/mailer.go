package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message is a rendered email
type Message struct {
	To       string
	Subject  string
	Text     string
	HTML     string
	Template string
}

// Mailer delivers rendered messages
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// LogMailer writes messages to the log instead of delivering them. It backs
// development setups without an SMTP relay.
type LogMailer struct {
	logger *logrus.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements Mailer.Send
func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	m.logger.WithFields(logrus.Fields{
		"to":       msg.To,
		"subject":  msg.Subject,
		"template": msg.Template,
	}).Info("email")
	m.logger.WithField("to", msg.To).Debug(msg.Text)
	return nil
}
