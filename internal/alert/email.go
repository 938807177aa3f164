package alert

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/mapwatch/mapwatch/internal/config"
)

const mimeBoundary = "mapwatch-alert-boundary"

// smtpTimeout bounds the whole SMTP conversation, dial through QUIT. A mail
// relay that stops responding must not stall the monitor loop.
const smtpTimeout = 30 * time.Second

// EmailSink sends alert mail over SMTP with STARTTLS. Each alert becomes a
// multipart/alternative message with plain text and HTML bodies.
type EmailSink struct {
	host       string
	port       int
	startTLS   bool
	username   string
	password   string
	sender     string
	recipients []string
	timeout    time.Duration
}

func NewEmailSink(cfg config.EmailConfig) *EmailSink {
	return &EmailSink{
		host:       cfg.Host,
		port:       cfg.Port,
		startTLS:   cfg.StartTLS,
		username:   cfg.Username,
		password:   cfg.Password(),
		sender:     cfg.Sender,
		recipients: cfg.Recipients,
		timeout:    smtpTimeout,
	}
}

func (s *EmailSink) Deliver(ctx context.Context, a Alert) error {
	msg := s.buildMessage(a)
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	done := make(chan error, 1)
	go func() { done <- s.send(addr, msg) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("alert: send mail: %w", err)
		}
		return nil
	}
}

// send runs the SMTP conversation. net/smtp has no context support, so the
// caller wraps this in a goroutine and races it against ctx; the connection
// deadline set here makes the conversation itself finite.
func (s *EmailSink) send(addr string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, s.timeout)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		conn.Close()
		return err
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if s.startTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return err
			}
		}
	}
	if s.username != "" && s.password != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(s.sender); err != nil {
		return err
	}
	for _, rcpt := range s.recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *EmailSink) buildMessage(a Alert) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.recipients, ", "))
	fmt.Fprintf(&b, "Subject: Dashboard alert: %s is in error state\r\n", a.EntityName)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mimeBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(textBody(a))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody(a))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return b.Bytes()
}

func textBody(a Alert) string {
	return fmt.Sprintf(`Entity error detected.

Entity:    %s
Dashboard: %s
Detected:  %s
Status:    %s

Log in to the dashboard and check the entity.

--
Sent automatically by the dashboard monitor.
`,
		a.EntityName,
		a.DashboardURL,
		a.FiredAt.Format(time.DateTime),
		a.StatusLabel,
	)
}

func htmlBody(a Alert) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto; border: 1px solid #ddd; border-radius: 8px; overflow: hidden;">
    <div style="background-color: #%s; color: white; padding: 16px; text-align: center;">
      <h2 style="margin: 0;">Entity Error Alert</h2>
    </div>
    <table style="width: 100%%; border-collapse: collapse; padding: 16px;">
      <tr><td style="padding: 8px; font-weight: bold;">Entity</td><td style="padding: 8px; color: #%s; font-weight: bold;">%s</td></tr>
      <tr><td style="padding: 8px; font-weight: bold;">Dashboard</td><td style="padding: 8px;"><a href=%q>%s</a></td></tr>
      <tr><td style="padding: 8px; font-weight: bold;">Detected</td><td style="padding: 8px;">%s</td></tr>
      <tr><td style="padding: 8px; font-weight: bold;">Status</td><td style="padding: 8px;">%s</td></tr>
    </table>
    <div style="padding: 12px; font-size: 12px; color: #666; text-align: center;">
      Sent automatically by the dashboard monitor.
    </div>
  </div>
</body>
</html>
`,
		errorColorHex, errorColorHex,
		a.EntityName,
		a.DashboardURL, a.DashboardURL,
		a.FiredAt.Format(time.DateTime),
		a.StatusLabel,
	)
}
