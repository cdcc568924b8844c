package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateActive   State = "ACTIVE"
	StateCanceled State = "CANCELED"
)

func ParseState(s string) (State, bool) {
	switch State(strings.ToUpper(s)) {
	case StateActive, StateCanceled:
		return State(strings.ToUpper(s)), true
	default:
		return "", false
	}
}

// Guest is a free-text entry on a reservation. The same person booked twice
// shows up as two unrelated guests.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Owner struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	LastName  string
}

func (o Owner) DisplayName() string {
	name := strings.TrimSpace(o.FirstName + " " + o.LastName)
	if name == "" {
		return o.Email
	}
	return name
}

type Reservation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Owner     Owner
	Since     time.Time
	Until     time.Time
	State     State
	Guests    []Guest
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StayRequest carries the mutable part of a reservation.
type StayRequest struct {
	Since  time.Time
	Until  time.Time
	Guests []Guest
}

func (r *Reservation) IsActive() bool {
	return r.State == StateActive
}

// IsUpcoming reports whether the stay has not started yet.
func (r *Reservation) IsUpcoming(now time.Time) bool {
	return r.Since.After(now)
}

// OccupiesAt reports whether someone is physically in the apartment at now.
// Both ends are inclusive and compared as instants, unlike DayRange.Overlaps.
func (r *Reservation) OccupiesAt(now time.Time) bool {
	return r.IsActive() && !now.Before(r.Since) && !now.After(r.Until)
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// OwnerFilter is nil for admins, who may act on any reservation.
func (a Actor) OwnerFilter() *uuid.UUID {
	if a.Admin {
		return nil
	}
	id := a.UserID
	return &id
}
