package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

const sendTimeout = 15 * time.Second

// SMTPMailer sends HTML emails via SMTP. With ImplicitTLS the connection
// is TLS from the first byte (SMTPS); otherwise STARTTLS is used when the
// server offers it.
type SMTPMailer struct {
	Host        string
	Port        string
	Username    string
	Password    string
	Sender      string
	ImplicitTLS bool

	// TLSConfig overrides the client TLS settings. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// NewSMTPMailerFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USERNAME,
// SMTP_PASSWORD, SMTP_SENDER and SMTP_TLS. SMTP_TLS is "implicit" or
// "starttls"; when unset, port 465 means implicit TLS.
func NewSMTPMailerFromEnv() (*SMTPMailer, error) {
	m := &SMTPMailer{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
	}
	if m.Host == "" {
		return nil, errors.New("SMTP_HOST is not set")
	}
	switch mode := strings.ToLower(strings.TrimSpace(env.GetEnv("SMTP_TLS", ""))); mode {
	case "implicit":
		m.ImplicitTLS = true
	case "starttls":
	case "":
		m.ImplicitTLS = m.Port == "465"
	default:
		return nil, fmt.Errorf("SMTP_TLS: unknown mode %q", mode)
	}
	if m.Sender == "" {
		m.Sender = "no-reply@" + m.Host
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", m.Sender)
	}
	return m, nil
}

// Send delivers one HTML message. The whole SMTP exchange is bounded by a
// fixed timeout; ctx can cut it shorter.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	addr := net.JoinHostPort(m.Host, m.Port)
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !m.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tlsConfig()); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.Username != "" && m.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.Sender); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(BuildMessage(m.Sender, to, subject, htmlBody)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := c.Quit(); err != nil {
		return err
	}

	log.Infof("[Mail] Email sent to %s via %s", to, addr)
	return nil
}

func (m *SMTPMailer) dial(ctx context.Context, addr string) (net.Conn, error) {
	if !m.ImplicitTLS {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	d := tls.Dialer{Config: m.tlsConfig()}
	return d.DialContext(ctx, "tcp", addr)
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	cfg := &tls.Config{}
	if m.TLSConfig != nil {
		cfg = m.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = m.Host
	}
	return cfg
}

// BuildMessage renders the raw message with headers for an HTML body.
func BuildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
