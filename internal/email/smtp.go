package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// defaultSMTPTimeout bounds a whole SMTP conversation when ctx has no deadline.
const defaultSMTPTimeout = time.Minute

// SMTPConfig holds credentials for an SMTP server.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SMTPProvider sends email via SMTP using Go's standard library.
type SMTPProvider struct {
	cfg      SMTPConfig
	sendMail func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	p := &SMTPProvider{cfg: cfg}
	p.sendMail = p.deliver
	return p
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = p.cfg.Username
	}
	msg.From = from

	body, err := buildMIME(msg)
	if err != nil {
		return &SendError{Provider: "smtp", Err: err}
	}

	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	if err := p.sendMail(ctx, addr, auth, from, msg.To, body); err != nil {
		return &SendError{Provider: "smtp", Err: err}
	}
	return nil
}

// deliver is smtp.SendMail with the connection bound to ctx: the dial honours
// cancellation and every read and write shares ctx's deadline.
func (p *SMTPProvider) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMTPTimeout)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
			return err
		}
	}
	if a != nil && p.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
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
