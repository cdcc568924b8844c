package mailer

import (
	"context"

	"github.com/diagnosis/apartment-reservations/pkg/logger"
	"github.com/google/uuid"
)

// DevMailer writes messages to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	logger.InfoContext(ctx, "[DEV MAIL]",
		"message_id", id,
		"to", msg.ToEmail,
		"name", msg.ToName,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return id, nil
}
