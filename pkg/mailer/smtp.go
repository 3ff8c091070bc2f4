package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// TLS policies accepted by SMTPConfig.TLSPolicy
const (
	TLSOpportunistic = "opportunistic"
	TLSMandatory     = "mandatory"
	TLSNone          = "none"
)

// SMTPConfig configures an SMTPMailer
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSPolicy is opportunistic (default), mandatory or none
	TLSPolicy string
	Timeout   time.Duration
	// InsecureSkipVerify disables certificate checks on STARTTLS; tests only
	InsecureSkipVerify bool
}

// SMTPMailer delivers mail through an SMTP relay
type SMTPMailer struct {
	config SMTPConfig
	from   *mail.Address
	policy gomail.TLSPolicy
}

// NewSMTPMailer creates an SMTPMailer
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}

	var policy gomail.TLSPolicy
	switch cfg.TLSPolicy {
	case "", TLSOpportunistic:
		policy = gomail.TLSOpportunistic
	case TLSMandatory:
		policy = gomail.TLSMandatory
	case TLSNone:
		policy = gomail.NoTLS
	default:
		return nil, fmt.Errorf("invalid smtp tls policy %q", cfg.TLSPolicy)
	}

	return &SMTPMailer{config: cfg, from: from, policy: policy}, nil
}

// Send implements Mailer.Send
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	composed, err := m.compose(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(m.config.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to configure smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, composed); err != nil {
		return fmt.Errorf("failed to deliver mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(m.config.Port),
		gomail.WithTLSPolicy(m.policy),
		gomail.WithTimeout(m.config.Timeout),
		gomail.WithTLSConfig(&tls.Config{
			ServerName:         m.config.Host,
			InsecureSkipVerify: m.config.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}),
	}
	if m.config.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.config.Username),
			gomail.WithPassword(m.config.Password),
		)
	}
	return opts
}

// compose builds a multipart/alternative message with text and HTML parts
func (m *SMTPMailer) compose(msg *Message) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.From(m.from.String()); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetMessageIDWithValue(uuid.NewString() + "@" + m.config.Host)

	switch {
	case msg.Text != "" && msg.HTML != "":
		out.SetBodyString(gomail.TypeTextPlain, msg.Text)
		out.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		out.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		out.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return out, nil
}
