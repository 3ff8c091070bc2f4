package mailer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskhub/pkg/observability"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []*Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.sent...)
}

func TestRender(t *testing.T) {
	msg, err := Render(TemplateEmailVerification, "alice@example.com", ActionData{
		Product:  "TaskHub",
		Username: "alice",
		Link:     "http://localhost:8080/api/v1/auth/verify/email/abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Please verify your email", msg.Subject)
	assert.Contains(t, msg.Text, "Hi alice,")
	assert.Contains(t, msg.Text, "(http://localhost:8080/api/v1/auth/verify/email/abc123)")
	assert.Contains(t, msg.HTML, `<a href="http://localhost:8080/api/v1/auth/verify/email/abc123">Verify your email</a>`)
	assert.Contains(t, msg.HTML, "<title>Please verify your email</title>")

	_, err = Render("unknown", "alice@example.com", ActionData{})
	assert.Error(t, err)
}

func TestRender_EscapesUserInput(t *testing.T) {
	msg, err := Render(TemplatePasswordReset, "bob@example.com", ActionData{
		Product:  "TaskHub",
		Username: "<script>bob</script>",
		Link:     "http://localhost/api/v1/auth/password/reset/t",
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestDispatcher_Links(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := NewDispatcher(context.Background(), &recordingMailer{}, DispatcherConfig{BaseURI: "https://tasks.example.com/"}, logger, nil)
	defer d.Shutdown(context.Background())

	assert.Equal(t, "https://tasks.example.com/api/v1/auth/verify/email/tok", d.VerificationLink("tok"))
	assert.Equal(t, "https://tasks.example.com/api/v1/auth/password/reset/tok", d.PasswordResetLink("tok"))
}

func TestDispatcher_Sends(t *testing.T) {
	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := &recordingMailer{}
	d := NewDispatcher(context.Background(), m, DispatcherConfig{BaseURI: "http://localhost:8080"}, logger, metrics)

	d.SendVerification(context.Background(), "alice@example.com", "alice", "v-token")
	d.SendPasswordReset(context.Background(), "alice@example.com", "alice", "r-token")
	require.NoError(t, d.Shutdown(context.Background()))

	sent := m.messages()
	require.Len(t, sent, 2)
	byTemplate := map[string]*Message{}
	for _, msg := range sent {
		byTemplate[msg.Template] = msg
	}
	assert.Contains(t, byTemplate[TemplateEmailVerification].Text, "/api/v1/auth/verify/email/v-token")
	assert.Contains(t, byTemplate[TemplatePasswordReset].Text, "/api/v1/auth/password/reset/r-token")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EmailsSentTotal.WithLabelValues(TemplateEmailVerification, "sent")))
	assert.Empty(t, hook.AllEntries())
}

func TestDispatcher_FailureIsLoggedNotReturned(t *testing.T) {
	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := &recordingMailer{err: errors.New("relay down")}
	d := NewDispatcher(context.Background(), m, DispatcherConfig{}, logger, metrics)

	d.SendPasswordReset(context.Background(), "bob@example.com", "bob", "tok")
	require.NoError(t, d.Shutdown(context.Background()))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EmailsSentTotal.WithLabelValues(TemplatePasswordReset, "failed")))
}

func TestDispatcher_DropsAfterShutdown(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := &recordingMailer{}
	d := NewDispatcher(context.Background(), m, DispatcherConfig{}, logger, nil)
	require.NoError(t, d.Shutdown(context.Background()))

	d.SendVerification(context.Background(), "alice@example.com", "alice", "tok")
	assert.Empty(t, m.messages())
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "email dropped", hook.LastEntry().Message)
}

func TestLogMailer(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	err := NewLogMailer(logger).Send(context.Background(), &Message{To: "a@example.com", Subject: "hi", Text: "body"})
	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "hi", hook.AllEntries()[0].Data["subject"])
	assert.Equal(t, "body", hook.LastEntry().Message)
}

// fakeSMTPServer speaks just enough SMTP to accept one message
type fakeSMTPServer struct {
	listener net.Listener
	mu       sync.Mutex
	from     string
	rcpt     string
	data     string
}

func newFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTPServer{listener: l}
	t.Cleanup(func() { l.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }
	reply("220 localhost ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = line[len("MAIL FROM:"):]
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = line[len("RCPT TO:"):]
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	srv := newFakeSMTPServer(t)
	m, err := NewSMTPMailer(SMTPConfig{
		Host: "127.0.0.1",
		Port: srv.port(),
		From: "TaskHub <noreply@example.com>",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.Send(ctx, &Message{
		To:      "alice@example.com",
		Subject: "Please verify your email",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "<noreply@example.com>", srv.from)
	assert.Equal(t, "<alice@example.com>", srv.rcpt)
	assert.Contains(t, srv.data, "Subject: Please verify your email")
	assert.Contains(t, srv.data, "multipart/alternative")
	assert.Contains(t, srv.data, "plain body")
	assert.Contains(t, srv.data, "<p>html body</p>")
	assert.Contains(t, srv.data, "Message-ID: <")
}

func TestSMTPMailer_MandatoryTLSRefusesPlainServer(t *testing.T) {
	srv := newFakeSMTPServer(t)
	m, err := NewSMTPMailer(SMTPConfig{
		Host:      "127.0.0.1",
		Port:      srv.port(),
		From:      "noreply@example.com",
		TLSPolicy: TLSMandatory,
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.Send(ctx, &Message{To: "alice@example.com", Subject: "hi", Text: "body"})
	require.Error(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Empty(t, srv.data, "nothing may be sent in the clear")
}

func TestSMTPMailer_Compose(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "mail.example.com", From: "TaskHub <noreply@example.com>"})
	require.NoError(t, err)

	t.Run("text and html", func(t *testing.T) {
		msg, err := m.compose(&Message{To: "bob@example.com", Subject: "Réinitialiser", Text: "plain", HTML: "<b>rich</b>"})
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = msg.WriteTo(&buf)
		require.NoError(t, err)
		raw := buf.String()
		assert.Contains(t, raw, "multipart/alternative")
		assert.Contains(t, raw, "text/plain")
		assert.Contains(t, raw, "text/html")
		assert.Contains(t, raw, "@mail.example.com>")
		assert.NotContains(t, raw, "Subject: Réinitialiser", "non-ascii subjects are encoded")
	})

	t.Run("html only", func(t *testing.T) {
		msg, err := m.compose(&Message{To: "bob@example.com", Subject: "hi", HTML: "<b>rich</b>"})
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = msg.WriteTo(&buf)
		require.NoError(t, err)
		assert.NotContains(t, buf.String(), "multipart/alternative")
		assert.Contains(t, buf.String(), "text/html")
	})

	t.Run("bad recipient", func(t *testing.T) {
		_, err := m.compose(&Message{To: "not an address", Subject: "hi", Text: "x"})
		assert.Error(t, err)
	})
}

func TestNewSMTPMailer_Validation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "noreply@example.com"})
	assert.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "localhost", From: "not an address"})
	assert.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "localhost", From: "noreply@example.com", TLSPolicy: "sometimes"})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "noreply@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, m.config.Port)
	assert.Equal(t, 10*time.Second, m.config.Timeout)
}
