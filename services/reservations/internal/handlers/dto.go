package handlers

import (
	"time"

	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
	"github.com/google/uuid"
)

type guestRequest struct {
	Name  string `json:"name" validate:"max=100"`
	Email string `json:"email" validate:"omitempty,email"`
}

type stayRequest struct {
	Since  time.Time      `json:"since" validate:"required"`
	Until  time.Time      `json:"until" validate:"required,gtfield=Since"`
	Guests []guestRequest `json:"guests" validate:"required,min=1,max=20,dive"`
}

func (s stayRequest) toDomain() domain.StayRequest {
	guests := make([]domain.Guest, 0, len(s.Guests))
	for _, g := range s.Guests {
		guests = append(guests, domain.Guest{Name: g.Name, Email: g.Email})
	}
	return domain.StayRequest{Since: s.Since, Until: s.Until, Guests: guests}
}

type OwnerDTO struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

type ReservationDTO struct {
	ID        uuid.UUID      `json:"id"`
	State     string         `json:"state"`
	Since     time.Time      `json:"since"`
	Until     time.Time      `json:"until"`
	Nights    int            `json:"nights"`
	Guests    []domain.Guest `json:"guests"`
	Owner     OwnerDTO       `json:"owner"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (h *Handlers) toDTO(r *domain.Reservation) ReservationDTO {
	guests := r.Guests
	if guests == nil {
		guests = []domain.Guest{}
	}
	return ReservationDTO{
		ID:     r.ID,
		State:  string(r.State),
		Since:  r.Since,
		Until:  r.Until,
		Nights: domain.NewCalendar(h.loc).Stay(r.Since, r.Until).Nights(),
		Guests: guests,
		Owner: OwnerDTO{
			ID:    r.Owner.ID,
			Email: r.Owner.Email,
			Name:  r.Owner.DisplayName(),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (h *Handlers) toDTOs(list []domain.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, 0, len(list))
	for i := range list {
		out = append(out, h.toDTO(&list[i]))
	}
	return out
}

type AvailabilityDTO struct {
	Since       time.Time `json:"since"`
	Until       time.Time `json:"until"`
	IsAvailable bool      `json:"is_available"`
}
