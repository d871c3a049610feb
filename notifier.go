package accounts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"

	"github.com/gofiber/template/django/v3"
)

// TemplateKind selects the notification content.
type TemplateKind string

const (
	// TemplateEmailVerification is sent on self registration.
	TemplateEmailVerification TemplateKind = "email_verification"
	// TemplateAccountCreated is sent on administrative creation.
	TemplateAccountCreated TemplateKind = "account_created"
	// TemplatePasswordReset confirms a password reset.
	TemplatePasswordReset TemplateKind = "password_reset"
	// TemplateAccountLocked tells the holder their account locked out.
	TemplateAccountLocked TemplateKind = "account_locked"
)

var templateSubjects = map[TemplateKind]string{
	TemplateEmailVerification: "Verify your account",
	TemplateAccountCreated:    "Your account has been created",
	TemplatePasswordReset:     "Your password was reset",
	TemplateAccountLocked:     "Your account has been locked",
}

// Notifier delivers account notifications. Implementations must not take
// part in the caller's persistence transaction.
type Notifier interface {
	Send(ctx context.Context, account *Account, kind TemplateKind, data map[string]any) error
}

// SMTPConfig holds mail transport options.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// sendFunc is a seam over smtp.SendMail for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders a template per TemplateKind and delivers it over SMTP.
type Mailer struct {
	cfg     SMTPConfig
	engine  *django.Engine
	logger  Logger
	send    sendFunc
	baseURL string
}

// NewMailer builds a Mailer rendering the embedded notification templates.
// baseURL is the public address used to build verification links.
func NewMailer(cfg SMTPConfig, baseURL string) (*Mailer, error) {
	engine := django.NewFileSystem(http.FS(GetTemplatesFS()), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("loading notification templates: %w", err)
	}

	return &Mailer{
		cfg:     cfg,
		engine:  engine,
		logger:  defLogger{},
		send:    smtp.SendMail,
		baseURL: baseURL,
	}, nil
}

// WithLogger overrides the mailer logger.
func (m *Mailer) WithLogger(l Logger) *Mailer {
	m.logger = l
	return m
}

// WithSender overrides the SMTP delivery function.
func (m *Mailer) WithSender(send sendFunc) *Mailer {
	m.send = send
	return m
}

// Send renders the template and delivers it to the account's email address.
// Failures are reported as notification errors so callers never mistake them
// for the mutation that preceded the dispatch having failed.
func (m *Mailer) Send(ctx context.Context, account *Account, kind TemplateKind, data map[string]any) error {
	select {
	case <-ctx.Done():
		return NewNotificationError(ctx.Err(), kind)
	default:
	}

	body, err := m.Render(account, kind, data)
	if err != nil {
		return NewNotificationError(err, kind)
	}

	msg := m.buildMessage(account.Email, templateSubjects[kind], body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(m.cfg.addr(), auth, m.cfg.From, []string{account.Email}, msg); err != nil {
		m.logger.Error("notification delivery failed", "template", string(kind), "error", err)
		return NewNotificationError(err, kind)
	}

	m.logger.Debug("notification delivered", "template", string(kind), "account_id", account.ID.String())

	return nil
}

// Render produces the HTML body for the given template kind.
func (m *Mailer) Render(account *Account, kind TemplateKind, data map[string]any) (string, error) {
	binding := map[string]any{
		"nickname":   account.Nickname,
		"first_name": account.FirstName,
		"email":      account.Email,
		"base_url":   m.baseURL,
	}
	for k, v := range data {
		binding[k] = v
	}

	var buf bytes.Buffer
	if err := m.engine.Render(&buf, string(kind), binding); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", kind, err)
	}

	return buf.String(), nil
}

func (m *Mailer) buildMessage(to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// NoopNotifier drops every notification. Useful in tests and local dev.
type NoopNotifier struct{}

func (NoopNotifier) Send(context.Context, *Account, TemplateKind, map[string]any) error {
	return nil
}

var (
	_ Notifier = (*Mailer)(nil)
	_ Notifier = NoopNotifier{}
)
