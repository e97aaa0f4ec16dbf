package provider

import (
	"context"
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the relay settings for SMTPProvider.
type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	FromAddress        string
	FromName           string
	InsecureSkipVerify bool
}

// SMTPProvider sends each message over its own SMTP session.
type SMTPProvider struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for local relays
	}
	return &SMTPProvider{
		dialer: d,
		from:   cfg.FromAddress,
		name:   cfg.FromName,
	}
}

func (p *SMTPProvider) Name() string { return "smtp" }

// Host returns the relay address, used in log fields.
func (p *SMTPProvider) Host() string {
	return fmt.Sprintf("%s:%d", p.dialer.Host, p.dialer.Port)
}

// Send delivers msg. gomail has no context support; ctx is only checked
// before dialing.
func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.from, p.name)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", p.Host(), err)
	}
	return nil
}

var _ Provider = (*SMTPProvider)(nil)
