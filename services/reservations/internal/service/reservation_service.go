package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/events"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/repository"
	"github.com/google/uuid"
)

type ReservationService interface {
	CheckAvailability(ctx context.Context, since, until time.Time) (bool, error)
	Create(ctx context.Context, userID uuid.UUID, req domain.StayRequest) (*domain.Reservation, error)
	Update(ctx context.Context, id uuid.UUID, actor domain.Actor, req domain.StayRequest) (*domain.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Reservation, error)
	Get(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Reservation, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Reservation, error)
	ListAll(ctx context.Context, state *domain.State, limit, offset int) ([]domain.Reservation, error)
	CurrentOccupant(ctx context.Context, now time.Time) (*domain.Reservation, error)
	ClosestForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Reservation, error)
	ReservationsInRange(ctx context.Context, start, end time.Time) ([]domain.Reservation, error)
	CalendarFrom(ctx context.Context, since time.Time, months int) ([]domain.Reservation, error)
	PreviousGuests(ctx context.Context, actor domain.Actor, search string, limit int) ([]domain.Guest, error)
	SendReminders(ctx context.Context, now time.Time) (int, error)
}

type reservationService struct {
	repo      repository.ReservationRepository
	publisher events.Publisher
	property  config.PropertyConfig
	cal       domain.Calendar
	now       func() time.Time
}

func NewReservationService(
	repo repository.ReservationRepository,
	publisher events.Publisher,
	property config.PropertyConfig,
) ReservationService {
	return &reservationService{
		repo:      repo,
		publisher: publisher,
		property:  property,
		cal:       domain.NewCalendar(property.Location()),
		now:       time.Now,
	}
}

// CheckAvailability reports whether no ACTIVE reservation shares a night
// with [day(since), day(until)).
func (s *reservationService) CheckAvailability(ctx context.Context, since, until time.Time) (bool, error) {
	if !since.Before(until) {
		return false, &domain.ValidationError{Field: "until", Message: "end of stay must be after its start"}
	}
	conflict, err := s.repo.HasConflict(ctx, s.cal.Stay(since, until), nil)
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return !conflict, nil
}

func (s *reservationService) Create(ctx context.Context, userID uuid.UUID, req domain.StayRequest) (*domain.Reservation, error) {
	guests, err := s.validate(req, false)
	if err != nil {
		return nil, err
	}
	days := s.cal.Stay(req.Since, req.Until)

	var created *domain.Reservation
	err = s.repo.RunInTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockCalendar(ctx); err != nil {
			return fmt.Errorf("lock calendar: %w", err)
		}
		conflict, err := tx.HasConflict(ctx, days, nil)
		if err != nil {
			return fmt.Errorf("check conflict: %w", err)
		}
		if conflict {
			return domain.ErrConflict
		}

		res := &domain.Reservation{
			ID:     uuid.New(),
			UserID: userID,
			Since:  req.Since,
			Until:  req.Until,
			State:  domain.StateActive,
		}
		if err := tx.Insert(ctx, res, days); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if err := tx.ReplaceGuests(ctx, res.ID, guests); err != nil {
			return fmt.Errorf("insert guests: %w", err)
		}
		created, err = tx.GetForUpdate(ctx, res.ID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Reservation created",
		"reservation_id", created.ID, "since", created.Since, "until", created.Until, "guests", len(created.Guests))
	s.publish(ctx, events.ReservationCreated, created, 0)
	return created, nil
}

// Update replaces the stay and the guest list of a reservation. Owners may
// only change upcoming stays; admins may also correct ongoing or past ones.
func (s *reservationService) Update(ctx context.Context, id uuid.UUID, actor domain.Actor, req domain.StayRequest) (*domain.Reservation, error) {
	guests, err := s.validate(req, actor.Admin)
	if err != nil {
		return nil, err
	}
	days := s.cal.Stay(req.Since, req.Until)
	now := s.now()

	var updated *domain.Reservation
	err = s.repo.RunInTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockCalendar(ctx); err != nil {
			return fmt.Errorf("lock calendar: %w", err)
		}
		existing, err := tx.GetForUpdate(ctx, id, actor.OwnerFilter())
		if err != nil {
			return fmt.Errorf("load reservation: %w", err)
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		if !existing.IsActive() {
			return domain.ErrCanceled
		}
		if !actor.Admin && !existing.IsUpcoming(now) {
			return &domain.ValidationError{Field: "since", Message: "only upcoming reservations can be changed"}
		}

		conflict, err := tx.HasConflict(ctx, days, &existing.ID)
		if err != nil {
			return fmt.Errorf("check conflict: %w", err)
		}
		if conflict {
			return domain.ErrConflict
		}

		existing.Since = req.Since
		existing.Until = req.Until
		if err := tx.UpdateStay(ctx, existing, days); err != nil {
			return fmt.Errorf("update stay: %w", err)
		}
		if err := tx.ReplaceGuests(ctx, existing.ID, guests); err != nil {
			return fmt.Errorf("replace guests: %w", err)
		}
		updated, err = tx.GetForUpdate(ctx, existing.ID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Reservation updated",
		"reservation_id", updated.ID, "since", updated.Since, "until", updated.Until, "by_admin", actor.Admin)
	s.publish(ctx, events.ReservationUpdated, updated, 0)
	return updated, nil
}

// Cancel moves a reservation to CANCELED. Canceling twice is a no-op and
// only the first call notifies the owner.
func (s *reservationService) Cancel(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Reservation, error) {
	var (
		res        *domain.Reservation
		transition bool
	)
	err := s.repo.RunInTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetForUpdate(ctx, id, actor.OwnerFilter())
		if err != nil {
			return fmt.Errorf("load reservation: %w", err)
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		res = existing
		if !existing.IsActive() {
			return nil
		}
		if err := tx.SetState(ctx, existing, domain.StateCanceled); err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		logger.InfoContext(ctx, "Reservation canceled", "reservation_id", res.ID, "by_admin", actor.Admin)
		s.publish(ctx, events.ReservationCanceled, res, 0)
	}
	return res, nil
}

func (s *reservationService) Get(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Reservation, error) {
	res, err := s.repo.Get(ctx, id, actor.OwnerFilter())
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

func (s *reservationService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Reservation, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *reservationService) ListAll(ctx context.Context, state *domain.State, limit, offset int) ([]domain.Reservation, error) {
	return s.repo.ListAll(ctx, state, limit, offset)
}

func (s *reservationService) CurrentOccupant(ctx context.Context, now time.Time) (*domain.Reservation, error) {
	return s.repo.CurrentOccupant(ctx, now)
}

func (s *reservationService) ClosestForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Reservation, error) {
	return s.repo.ClosestForUser(ctx, userID, now)
}

// ReservationsInRange lists ACTIVE reservations sharing a night with any
// day from start to end inclusive.
func (s *reservationService) ReservationsInRange(ctx context.Context, start, end time.Time) ([]domain.Reservation, error) {
	if end.Before(start) {
		return nil, &domain.ValidationError{Field: "to", Message: "range end must not precede its start"}
	}
	return s.repo.ListInDays(ctx, s.cal.Span(start, end))
}

// CalendarFrom lists the reservations shown on a calendar that opens at
// since and covers the given number of months.
func (s *reservationService) CalendarFrom(ctx context.Context, since time.Time, months int) ([]domain.Reservation, error) {
	if months <= 0 {
		months = s.property.CalendarMonths
	}
	if months > 24 {
		return nil, &domain.ValidationError{Field: "months", Message: "at most 24 months can be shown"}
	}
	start := s.cal.Day(since)
	return s.repo.ListInDays(ctx, domain.DayRange{Start: start, End: start.AddDate(0, months, 0)})
}

func (s *reservationService) PreviousGuests(ctx context.Context, actor domain.Actor, search string, limit int) ([]domain.Guest, error) {
	return s.repo.PreviousGuests(ctx, actor.OwnerFilter(), search, limit)
}

// SendReminders publishes a reminder for every ACTIVE reservation starting
// a configured number of days after now.
func (s *reservationService) SendReminders(ctx context.Context, now time.Time) (int, error) {
	today := s.cal.Day(now)
	sent := 0
	for _, d := range s.property.ReminderDays {
		starting, err := s.repo.ListStartingOn(ctx, today.AddDate(0, 0, d))
		if err != nil {
			return sent, fmt.Errorf("list reservations starting in %d days: %w", d, err)
		}
		for i := range starting {
			s.publish(ctx, events.ReservationReminder, &starting[i], d)
			sent++
		}
	}
	return sent, nil
}

func (s *reservationService) validate(req domain.StayRequest, allowPast bool) ([]domain.Guest, error) {
	if err := domain.ValidateStay(s.cal, req.Since, req.Until, s.now(), allowPast); err != nil {
		return nil, err
	}
	return domain.NormalizeGuests(req.Guests)
}

// publish never fails the caller; delivery problems are only logged.
func (s *reservationService) publish(ctx context.Context, subject string, res *domain.Reservation, inDays int) {
	guests := make([]events.GuestPayload, 0, len(res.Guests))
	for _, g := range res.Guests {
		guests = append(guests, events.GuestPayload{Name: g.Name, Email: g.Email})
	}
	event := events.ReservationEvent{
		ReservationID: res.ID,
		OwnerEmail:    res.Owner.Email,
		OwnerName:     res.Owner.DisplayName(),
		Since:         res.Since,
		Until:         res.Until,
		Nights:        s.cal.Stay(res.Since, res.Until).Nights(),
		Guests:        guests,
		InDays:        inDays,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish reservation event",
			"error", err, "subject", subject, "reservation_id", res.ID)
	}
}
