package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/events"
	"github.com/diagnosis/apartment-reservations/pkg/mailer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

var property = config.PropertyConfig{
	Name:     "Sarbinowo",
	Timezone: "Europe/Warsaw",
	BaseURL:  "https://apartment.example/",
}

func event(t *testing.T, subject string, ev events.ReservationEvent) *events.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return &events.Message{Subject: subject, Data: data, ID: uuid.NewString(), Timestamp: time.Now()}
}

func sampleEvent() events.ReservationEvent {
	return events.ReservationEvent{
		ReservationID: uuid.New(),
		OwnerEmail:    "ola@example.com",
		OwnerName:     "Ola Nowak",
		Since:         time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		Until:         time.Date(2024, 7, 8, 8, 0, 0, 0, time.UTC),
		Nights:        7,
		Guests:        []events.GuestPayload{{Name: "Jan"}, {Name: "<b>Anna</b>", Email: "anna@example.com"}},
	}
}

func TestKindForSubject(t *testing.T) {
	for _, subject := range Subjects {
		_, ok := KindForSubject(subject)
		assert.True(t, ok, subject)
	}
	_, ok := KindForSubject("reservation.deleted")
	assert.False(t, ok)
}

func TestRender_Confirmation(t *testing.T) {
	n := New(&recordingMailer{}, property)
	ev := sampleEvent()

	msg, err := n.Render(KindConfirmation, ev)
	require.NoError(t, err)

	assert.Equal(t, "ola@example.com", msg.ToEmail)
	assert.Equal(t, "Sarbinowo: your reservation is confirmed", msg.Subject)
	assert.Contains(t, msg.Text, "Hello Ola Nowak")
	assert.Contains(t, msg.Text, "01/07/2024 14:00 - 08/07/2024 10:00 (7 nights)")
	assert.Contains(t, msg.Text, "<b>Anna</b> <anna@example.com>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Anna&lt;/b&gt;")
	assert.Contains(t, msg.HTML, `href="https://apartment.example/reservations/`+ev.ReservationID.String()+`"`)
}

func TestRender_ReminderAndCancellation(t *testing.T) {
	n := New(&recordingMailer{}, property)
	ev := sampleEvent()

	ev.InDays = 1
	msg, err := n.Render(KindReminder, ev)
	require.NoError(t, err)
	assert.Equal(t, "Sarbinowo: your stay starts in 1 day", msg.Subject)

	ev.InDays = 7
	msg, err = n.Render(KindReminder, ev)
	require.NoError(t, err)
	assert.Equal(t, "Sarbinowo: your stay starts in 7 days", msg.Subject)

	msg, err = n.Render(KindCancellation, ev)
	require.NoError(t, err)
	assert.Contains(t, msg.Subject, "canceled")
	assert.NotContains(t, msg.HTML, "View reservation")
}

func TestRender_NightsFromEvent(t *testing.T) {
	n := New(&recordingMailer{}, property)
	ev := sampleEvent()
	ev.Nights = 1

	msg, err := n.Render(KindUpdate, ev)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "(1 night)")
}

func TestHandle_SendsToOwner(t *testing.T) {
	m := &recordingMailer{}
	n := New(m, property)

	n.Handle(context.Background(), event(t, events.ReservationCreated, sampleEvent()))

	require.Len(t, m.sent, 1)
	assert.Equal(t, "ola@example.com", m.sent[0].ToEmail)
}

func TestHandle_DropsBadInput(t *testing.T) {
	m := &recordingMailer{}
	n := New(m, property)
	ctx := context.Background()

	n.Handle(ctx, &events.Message{Subject: events.ReservationCreated, Data: []byte("{")})
	n.Handle(ctx, event(t, "reservation.unknown", sampleEvent()))

	noOwner := sampleEvent()
	noOwner.OwnerEmail = ""
	n.Handle(ctx, event(t, events.ReservationCanceled, noOwner))

	assert.Empty(t, m.sent)
}

func TestHandle_MailerFailureIsSwallowed(t *testing.T) {
	n := New(&recordingMailer{err: errors.New("smtp down")}, property)
	assert.NotPanics(t, func() {
		n.Handle(context.Background(), event(t, events.ReservationUpdated, sampleEvent()))
	})
}
