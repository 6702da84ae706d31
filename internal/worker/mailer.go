package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"classbook/internal/config"
	"classbook/internal/models"
)

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends plain-text email through an SMTP relay, upgrading to STARTTLS
// whenever the server offers it.
type Mailer struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	m := &Mailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host: cfg.Host,
		from: cfg.From,
		now:  time.Now,
	}
	m.sendMail = m.deliver
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m
}

func (m *Mailer) Send(ctx context.Context, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Recipient == "" {
		return Permanent(errors.New("email recipient is empty"))
	}
	if strings.ContainsAny(n.Recipient, "\r\n") {
		return Permanent(fmt.Errorf("invalid email recipient %q", n.Recipient))
	}

	msg := m.buildMessage(n.Recipient, n.Subject, n.Body)
	if err := m.sendMail(ctx, m.addr, m.auth, m.from, []string{n.Recipient}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", n.Recipient, err)
	}
	return nil
}

// deliver runs one SMTP session bound to ctx: the dial honours it, the
// connection deadline follows its deadline, and cancelling it closes the
// socket so a silent relay cannot hold the worker.
func (m *Mailer) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return ctxErrOr(ctx, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
			return ctxErrOr(ctx, err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return ctxErrOr(ctx, err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return ctxErrOr(ctx, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return ctxErrOr(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return ctxErrOr(ctx, err)
	}
	if _, err := w.Write(msg); err != nil {
		return ctxErrOr(ctx, err)
	}
	if err := w.Close(); err != nil {
		return ctxErrOr(ctx, err)
	}
	return ctxErrOr(ctx, c.Quit())
}

// ctxErrOr prefers the context error: a closed socket after cancel is noise.
func ctxErrOr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// conn deadline may fire a moment before the ctx timer
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

func (m *Mailer) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + m.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
