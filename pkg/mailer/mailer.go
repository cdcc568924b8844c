package mailer

import (
	"context"

	"github.com/diagnosis/apartment-reservations/pkg/config"
)

// Message is a single outgoing email with plain text and HTML bodies.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Service delivers a message and returns the provider's message id when it has one.
type Service interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New picks the mailer for the configuration: dev log mailer, MailerSend, or SMTP.
func New(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}
