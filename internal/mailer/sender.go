package mailer

import (
	"context"
	"fmt"

	"github.com/fireflycare/firefly-BE/internal/util"
	"github.com/wneessen/go-mail"
)

// EmailPayload is one rendered message ready for delivery.
type EmailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// EmailSender delivers a rendered message and returns its message id.
type EmailSender interface {
	Send(ctx context.Context, payload EmailPayload) (messageID string, err error)
}

type SMTPSender struct {
	client        *mail.Client
	senderName    string
	senderAddress string
}

func NewSMTPSender(config util.Config) (*SMTPSender, error) {
	client, err := mail.NewClient(config.SMTPHost, mail.WithPort(config.SMTPPort), mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(config.SMTPUsername), mail.WithPassword(config.SMTPPassword))
	if err != nil {
		return nil, err
	}
	if err = client.DialWithContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	return &SMTPSender{
		client:        client,
		senderName:    config.SenderName,
		senderAddress: config.SenderAddress,
	}, nil
}

func (sender *SMTPSender) Send(ctx context.Context, payload EmailPayload) (string, error) {
	msg := mail.NewMsg()

	if err := msg.FromFormat(sender.senderName, sender.senderAddress); err != nil {
		return "", fmt.Errorf("failed to set From address: %w", err)
	}
	if err := msg.To(payload.To); err != nil {
		return "", fmt.Errorf("failed to set To address: %w", err)
	}

	msg.Subject(payload.Subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, payload.TextBody)
	msg.AddAlternativeString(mail.TypeTextHTML, payload.HTMLBody)

	if err := sender.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return msg.GetMessageID(), nil
}
