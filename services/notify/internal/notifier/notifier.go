package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/events"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	"github.com/diagnosis/apartment-reservations/pkg/mailer"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindUpdate       Kind = "update"
	KindCancellation Kind = "cancellation"
	KindReminder     Kind = "reminder"
)

// Subjects lists every subject the notifier consumes.
var Subjects = []string{
	events.ReservationCreated,
	events.ReservationUpdated,
	events.ReservationCanceled,
	events.ReservationReminder,
}

func KindForSubject(subject string) (Kind, bool) {
	switch subject {
	case events.ReservationCreated:
		return KindConfirmation, true
	case events.ReservationUpdated:
		return KindUpdate, true
	case events.ReservationCanceled:
		return KindCancellation, true
	case events.ReservationReminder:
		return KindReminder, true
	default:
		return "", false
	}
}

type Notifier struct {
	mailer   mailer.Service
	property config.PropertyConfig
	loc      *time.Location
}

func New(m mailer.Service, property config.PropertyConfig) *Notifier {
	return &Notifier{mailer: m, property: property, loc: property.Location()}
}

// Handle turns one reservation event into an email to the owner. Failures
// are logged and dropped.
func (n *Notifier) Handle(ctx context.Context, msg *events.Message) {
	kind, ok := KindForSubject(msg.Subject)
	if !ok {
		logger.WarnContext(ctx, "Ignoring event with unknown subject", "subject", msg.Subject)
		return
	}

	var ev events.ReservationEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.ErrorContext(ctx, "Failed to decode reservation event", "error", err, "event_id", msg.ID)
		return
	}
	if ev.OwnerEmail == "" {
		logger.WarnContext(ctx, "Reservation event without recipient", "event_id", msg.ID, "reservation_id", ev.ReservationID)
		return
	}

	email, err := n.Render(kind, ev)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to render email", "error", err, "kind", kind, "reservation_id", ev.ReservationID)
		return
	}

	id, err := n.mailer.Send(ctx, email)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to send email", "error", err, "kind", kind, "reservation_id", ev.ReservationID)
		return
	}
	logger.InfoContext(ctx, "Email sent", "kind", kind, "reservation_id", ev.ReservationID, "message_id", id)
}

type emailData struct {
	Property  string
	OwnerName string
	Since     string
	Until     string
	Nights    int
	Guests    []events.GuestPayload
	InDays    int
	Link      string
}

func (n *Notifier) Render(kind Kind, ev events.ReservationEvent) (mailer.Message, error) {
	tpl, ok := templates[kind]
	if !ok {
		return mailer.Message{}, fmt.Errorf("no template for %q", kind)
	}

	ownerName := ev.OwnerName
	if ownerName == "" {
		ownerName = ev.OwnerEmail
	}
	data := emailData{
		Property:  n.property.Name,
		OwnerName: ownerName,
		Since:     ev.Since.In(n.loc).Format("02/01/2006 15:04"),
		Until:     ev.Until.In(n.loc).Format("02/01/2006 15:04"),
		Nights:    ev.Nights,
		Guests:    ev.Guests,
		InDays:    ev.InDays,
	}
	if n.property.BaseURL != "" && kind != KindCancellation {
		data.Link = strings.TrimRight(n.property.BaseURL, "/") + "/reservations/" + ev.ReservationID.String()
	}

	var subject, text, html bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render text: %w", err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render html: %w", err)
	}

	return mailer.Message{
		ToEmail: ev.OwnerEmail,
		ToName:  ev.OwnerName,
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
