package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MaxGuests          = 20
	MaxGuestNameLength = 100
)

var validate = validator.New()

// ValidateStay checks a requested stay. allowPast lifts the "not in the past"
// rule for admin corrections of ongoing or finished stays.
func ValidateStay(cal Calendar, since, until, now time.Time, allowPast bool) error {
	if since.IsZero() {
		return invalid("since", "start of stay is required")
	}
	if until.IsZero() {
		return invalid("until", "end of stay is required")
	}
	if !since.Before(until) {
		return invalid("until", "end of stay must be after its start")
	}
	if cal.Stay(since, until).Nights() < 1 {
		return invalid("until", "stay must span at least one night")
	}
	if !allowPast && since.Before(now) {
		return invalid("since", "start of stay cannot be in the past")
	}
	return nil
}

// NormalizeGuests trims names and emails and drops rows without a name.
// At least one named guest must remain.
func NormalizeGuests(guests []Guest) ([]Guest, error) {
	out := make([]Guest, 0, len(guests))
	for _, g := range guests {
		name := strings.Join(strings.Fields(g.Name), " ")
		if name == "" {
			continue
		}
		if len(name) > MaxGuestNameLength {
			return nil, invalid("guests", "guest name is too long")
		}
		email := strings.ToLower(strings.TrimSpace(g.Email))
		if email != "" {
			if err := validate.Var(email, "email"); err != nil {
				return nil, invalid("guests", "guest email "+email+" is not valid")
			}
		}
		out = append(out, Guest{Name: name, Email: email})
	}
	if len(out) == 0 {
		return nil, invalid("guests", "at least one guest is required")
	}
	if len(out) > MaxGuests {
		return nil, invalid("guests", "too many guests")
	}
	return out, nil
}
