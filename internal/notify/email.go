package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
)

// EmailChannel sends notifications via SMTP.
type EmailChannel struct {
	cfg config.EmailNotifyConfig
}

// NewEmail creates an EmailChannel from cfg.
func NewEmail(cfg config.EmailNotifyConfig) *EmailChannel { return &EmailChannel{cfg: cfg} }

func (e *EmailChannel) Name() string { return "email" }
func (e *EmailChannel) IsConfigured() bool {
	return e.cfg.SMTPHost != "" && len(e.cfg.To) > 0 && e.cfg.From != ""
}

func (e *EmailChannel) Send(_ context.Context, evt Event) error {
	text := evt.Body
	if evt.URL != "" {
		text += "\n\n" + evt.URL
	}
	msg := fmt.Sprintf("Subject: %s\r\nFrom: %s\r\nTo: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		evt.Title, e.cfg.From, strings.Join(e.cfg.To, ", "),
		strings.ReplaceAll(text, "\n", "\r\n"))

	port := e.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, port)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}
	return smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(msg))
}
