package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	"github.com/robfig/cron/v3"
)

// ReminderJob sends arrival reminders once a day at a fixed local hour.
type ReminderJob struct {
	svc  ReservationService
	spec string
	loc  *time.Location
	now  func() time.Time
}

func NewReminderJob(svc ReservationService, property config.PropertyConfig) *ReminderJob {
	loc := property.Location()
	return &ReminderJob{
		svc:  svc,
		spec: fmt.Sprintf("CRON_TZ=%s 0 %d * * *", loc.String(), property.ReminderHour),
		loc:  loc,
		now:  time.Now,
	}
}

// Spec is the cron schedule of the job, pinned to the property timezone.
func (j *ReminderJob) Spec() string {
	return j.spec
}

// Run blocks until ctx is canceled, then waits for a running batch to finish.
func (j *ReminderJob) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc(j.spec, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reminders %q: %w", j.spec, err)
	}
	c.Start()
	logger.Info("Reminder job scheduled", "spec", j.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce sends the reminders due at the current instant.
func (j *ReminderJob) RunOnce(ctx context.Context) {
	sent, err := j.svc.SendReminders(ctx, j.now())
	if err != nil {
		logger.ErrorContext(ctx, "Reminder run failed", "error", err, "sent", sent)
		return
	}
	logger.InfoContext(ctx, "Reminder run finished", "sent", sent)
}
