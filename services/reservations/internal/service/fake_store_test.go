package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/events"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/repository"
	"github.com/google/uuid"
)

type storedReservation struct {
	res  domain.Reservation
	days domain.DayRange
}

// fakeStore is an in-memory ReservationRepository. Transactions are
// serialized by a calendar mutex and roll back through an undo log.
type fakeStore struct {
	calendar sync.Mutex

	mu          sync.Mutex
	cal         domain.Calendar
	users       map[uuid.UUID]domain.Owner
	rows        map[uuid.UUID]*storedReservation
	writes      int
	failReplace error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cal:   domain.NewCalendar(time.UTC),
		users: make(map[uuid.UUID]domain.Owner),
		rows:  make(map[uuid.UUID]*storedReservation),
	}
}

func (s *fakeStore) addUser(email string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = domain.Owner{ID: id, Email: email, FirstName: strings.Split(email, "@")[0]}
	return id
}

func (s *fakeStore) seed(userID uuid.UUID, since, until time.Time, state domain.State, guests ...string) domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := domain.Reservation{ID: uuid.New(), UserID: userID, Since: since, Until: until, State: state}
	for _, g := range guests {
		res.Guests = append(res.Guests, domain.Guest{Name: g})
	}
	s.rows[res.ID] = &storedReservation{res: res, days: s.cal.Stay(since, until)}
	return s.materialize(s.rows[res.ID])
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) active() []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, row := range s.rows {
		if row.res.IsActive() {
			out = append(out, s.materialize(row))
		}
	}
	return out
}

// materialize must be called with mu held.
func (s *fakeStore) materialize(row *storedReservation) domain.Reservation {
	res := row.res
	res.Owner = s.users[res.UserID]
	res.Guests = append([]domain.Guest(nil), row.res.Guests...)
	return res
}

func (s *fakeStore) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	tx := &fakeTx{store: s}
	defer func() {
		if err != nil {
			s.mu.Lock()
			for i := len(tx.undo) - 1; i >= 0; i-- {
				tx.undo[i]()
			}
			s.mu.Unlock()
		}
		if tx.locked {
			s.calendar.Unlock()
		}
	}()
	return fn(tx)
}

func (s *fakeStore) find(match func(*storedReservation) bool) []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, row := range s.rows {
		if match(row) {
			out = append(out, s.materialize(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

func (s *fakeStore) conflicts(days domain.DayRange, excludeID *uuid.UUID) bool {
	for _, row := range s.rows {
		if !row.res.IsActive() || (excludeID != nil && row.res.ID == *excludeID) {
			continue
		}
		if row.days.Overlaps(days) {
			return true
		}
	}
	return false
}

func (s *fakeStore) Get(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*domain.Reservation, error) {
	found := s.find(func(r *storedReservation) bool {
		return r.res.ID == id && (ownerID == nil || r.res.UserID == *ownerID)
	})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *fakeStore) HasConflict(ctx context.Context, days domain.DayRange, excludeID *uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflicts(days, excludeID), nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Reservation, error) {
	out := s.find(func(r *storedReservation) bool { return r.res.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].Since.After(out[j].Since) })
	return out, nil
}

func (s *fakeStore) ListAll(ctx context.Context, state *domain.State, limit, offset int) ([]domain.Reservation, error) {
	return s.find(func(r *storedReservation) bool { return state == nil || r.res.State == *state }), nil
}

func (s *fakeStore) ListInDays(ctx context.Context, days domain.DayRange) ([]domain.Reservation, error) {
	return s.find(func(r *storedReservation) bool { return r.res.IsActive() && r.days.Overlaps(days) }), nil
}

func (s *fakeStore) CurrentOccupant(ctx context.Context, now time.Time) (*domain.Reservation, error) {
	found := s.find(func(r *storedReservation) bool { return r.res.OccupiesAt(now) })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[len(found)-1], nil
}

func (s *fakeStore) ClosestForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Reservation, error) {
	found := s.find(func(r *storedReservation) bool {
		return r.res.UserID == userID && r.res.IsActive() && !r.res.Since.Before(now)
	})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *fakeStore) ListStartingOn(ctx context.Context, day time.Time) ([]domain.Reservation, error) {
	return s.find(func(r *storedReservation) bool { return r.res.IsActive() && r.days.Start.Equal(day) }), nil
}

func (s *fakeStore) PreviousGuests(ctx context.Context, ownerID *uuid.UUID, search string, limit int) ([]domain.Guest, error) {
	seen := make(map[string]bool)
	var out []domain.Guest
	for _, res := range s.find(func(r *storedReservation) bool { return ownerID == nil || r.res.UserID == *ownerID }) {
		for _, g := range res.Guests {
			key := strings.ToLower(g.Name)
			if seen[key] || !strings.HasPrefix(key, strings.ToLower(search)) {
				continue
			}
			seen[key] = true
			out = append(out, g)
		}
	}
	return out, nil
}

type fakeTx struct {
	store  *fakeStore
	locked bool
	undo   []func()
}

func (t *fakeTx) lock() {
	if !t.locked {
		t.store.calendar.Lock()
		t.locked = true
	}
}

// snapshot records how to restore a row; mu must be held.
func (t *fakeTx) snapshot(id uuid.UUID) {
	s := t.store
	if prev, ok := s.rows[id]; ok {
		saved := *prev
		saved.res.Guests = append([]domain.Guest(nil), prev.res.Guests...)
		t.undo = append(t.undo, func() { s.rows[id] = &saved })
		return
	}
	t.undo = append(t.undo, func() { delete(s.rows, id) })
}

func (t *fakeTx) LockCalendar(ctx context.Context) error {
	t.lock()
	return nil
}

func (t *fakeTx) HasConflict(ctx context.Context, days domain.DayRange, excludeID *uuid.UUID) (bool, error) {
	return t.store.HasConflict(ctx, days, excludeID)
}

func (t *fakeTx) Insert(ctx context.Context, res *domain.Reservation, days domain.DayRange) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(days, nil) {
		return domain.ErrConflict
	}
	t.snapshot(res.ID)
	s.writes++
	stored := *res
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.rows[res.ID] = &storedReservation{res: stored, days: days}
	return nil
}

func (t *fakeTx) GetForUpdate(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*domain.Reservation, error) {
	t.lock()
	return t.store.Get(ctx, id, ownerID)
}

func (t *fakeTx) UpdateStay(ctx context.Context, res *domain.Reservation, days domain.DayRange) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[res.ID]
	if !ok {
		return errors.New("no such row")
	}
	if s.conflicts(days, &res.ID) {
		return domain.ErrConflict
	}
	t.snapshot(res.ID)
	s.writes++
	row.res.Since, row.res.Until, row.days = res.Since, res.Until, days
	return nil
}

func (t *fakeTx) ReplaceGuests(ctx context.Context, reservationID uuid.UUID, guests []domain.Guest) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[reservationID]
	if !ok {
		return errors.New("no such row")
	}
	t.snapshot(reservationID)
	row.res.Guests = nil
	if s.failReplace != nil {
		return s.failReplace
	}
	s.writes++
	row.res.Guests = append([]domain.Guest(nil), guests...)
	return nil
}

func (t *fakeTx) SetState(ctx context.Context, res *domain.Reservation, state domain.State) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[res.ID]
	if !ok {
		return errors.New("no such row")
	}
	t.snapshot(res.ID)
	s.writes++
	row.res.State = state
	res.State = state
	return nil
}

type publishedEvent struct {
	subject string
	id      uuid.UUID
	inDays  int
	nights  int
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	e := publishedEvent{subject: subject}
	if ev, ok := data.(events.ReservationEvent); ok {
		e.id, e.inDays, e.nights = ev.ReservationID, ev.InDays, ev.Nights
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.subject)
	}
	return out
}
