// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS dials with implicit TLS (SMTPS). Otherwise STARTTLS is used when
	// the server offers it.
	TLS bool
}

// Validate checks that the settings are usable.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return oops.Code("SMTP_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return oops.Code("SMTP_INVALID_CONFIG").With("port", c.Port).Errorf("smtp port out of range")
	}
	if c.From == "" {
		return oops.Code("SMTP_INVALID_CONFIG").Errorf("smtp from address is required")
	}
	return nil
}

func (c SMTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SMTPDispatcher sends notifications through an SMTP server.
type SMTPDispatcher struct {
	cfg    SMTPConfig
	dialer *net.Dialer
	now    func() time.Time
}

// NewSMTPDispatcher creates an SMTPDispatcher.
func NewSMTPDispatcher(cfg SMTPConfig) (*SMTPDispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPDispatcher{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: 10 * time.Second},
		now:    time.Now,
	}, nil
}

// Dispatch sends n. The context deadline bounds the whole SMTP exchange.
func (d *SMTPDispatcher) Dispatch(ctx context.Context, n Notification) error {
	errb := oops.Code("SMTP_SEND_FAILED").With("kind", string(n.Kind))

	conn, err := d.dial(ctx)
	if err != nil {
		return errb.With("addr", d.cfg.addr()).Wrap(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errb.Wrap(err)
	}
	defer client.Close() //nolint:errcheck // Quit below reports the real outcome

	if !d.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: d.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return errb.Wrap(err)
			}
		}
	}

	if d.cfg.Username != "" {
		auth := smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return errb.Wrap(err)
		}
	}

	if err := client.Mail(d.cfg.From); err != nil {
		return errb.Wrap(err)
	}
	if err := client.Rcpt(n.To); err != nil {
		return errb.Wrap(err)
	}

	w, err := client.Data()
	if err != nil {
		return errb.Wrap(err)
	}
	if _, err := w.Write(d.message(n)); err != nil {
		return errb.Wrap(err)
	}
	if err := w.Close(); err != nil {
		return errb.Wrap(err)
	}
	if err := client.Quit(); err != nil {
		return errb.Wrap(err)
	}
	return nil
}

func (d *SMTPDispatcher) dial(ctx context.Context) (net.Conn, error) {
	if d.cfg.TLS {
		td := &tls.Dialer{
			NetDialer: d.dialer,
			Config:    &tls.Config{ServerName: d.cfg.Host, MinVersion: tls.VersionTLS12},
		}
		return td.DialContext(ctx, "tcp", d.cfg.addr())
	}
	return d.dialer.DialContext(ctx, "tcp", d.cfg.addr())
}

func (d *SMTPDispatcher) message(n Notification) []byte {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", d.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", n.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", Subject(n.Kind))
	fmt.Fprintf(&msg, "Date: %s\r\n", d.now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(Body(n))
	return []byte(msg.String())
}
