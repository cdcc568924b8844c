package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// calendarLockKey is the advisory lock serializing every write to the
// apartment calendar. There is exactly one bookable resource.
const calendarLockKey int64 = 0x61707274

const (
	pgExclusionViolation = "23P01"
	pgCheckViolation     = "23514"
)

type ReservationRepository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Get(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*domain.Reservation, error)
	HasConflict(ctx context.Context, days domain.DayRange, excludeID *uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Reservation, error)
	ListAll(ctx context.Context, state *domain.State, limit, offset int) ([]domain.Reservation, error)
	ListInDays(ctx context.Context, days domain.DayRange) ([]domain.Reservation, error)
	CurrentOccupant(ctx context.Context, now time.Time) (*domain.Reservation, error)
	ClosestForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Reservation, error)
	ListStartingOn(ctx context.Context, day time.Time) ([]domain.Reservation, error)
	PreviousGuests(ctx context.Context, ownerID *uuid.UUID, search string, limit int) ([]domain.Guest, error)
}

// Tx is the write side of the store. Every method runs inside the
// transaction opened by RunInTx.
type Tx interface {
	LockCalendar(ctx context.Context) error
	HasConflict(ctx context.Context, days domain.DayRange, excludeID *uuid.UUID) (bool, error)
	Insert(ctx context.Context, r *domain.Reservation, days domain.DayRange) error
	GetForUpdate(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*domain.Reservation, error)
	UpdateStay(ctx context.Context, r *domain.Reservation, days domain.DayRange) error
	ReplaceGuests(ctx context.Context, reservationID uuid.UUID, guests []domain.Guest) error
	SetState(ctx context.Context, r *domain.Reservation, state domain.State) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type reservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepository{pool: pool}
}

const reservationCols = `r.id, r.user_id, r.since, r.until, r.state, r.created_at, r.updated_at,
u.email, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
COALESCE((
	SELECT json_agg(json_build_object('name', g.name, 'email', COALESCE(g.email, '')) ORDER BY g.position)
	FROM guests g WHERE g.reservation_id = r.id
), '[]'::json)`

const reservationFrom = ` FROM reservations r JOIN users u ON u.id = r.user_id`

const activeOverlap = `r.state = 'ACTIVE' AND daterange(r.since_day, r.until_day, '[)') && daterange($1::date, $2::date, '[)')`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.UserID, &res.Since, &res.Until, &res.State, &res.CreatedAt, &res.UpdatedAt,
		&res.Owner.Email, &res.Owner.FirstName, &res.Owner.LastName,
		&res.Guests,
	)
	if err != nil {
		return nil, err
	}
	res.Owner.ID = res.UserID
	return &res, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func getOne(ctx context.Context, q querier, sql string, args ...any) (*domain.Reservation, error) {
	res, err := scanReservation(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func hasConflict(ctx context.Context, q querier, days domain.DayRange, excludeID *uuid.UUID) (bool, error) {
	const sql = `SELECT EXISTS (
		SELECT 1 FROM reservations r
		WHERE ` + activeOverlap + `
		AND ($3::uuid IS NULL OR r.id <> $3)
	)`

	var exists bool
	err := q.QueryRow(ctx, sql, days.Start, days.End, excludeID).Scan(&exists)
	return exists, err
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return domain.ErrConflict
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", domain.ErrValidation, pgErr.ConstraintName)
		}
	}
	return err
}

func (r *reservationRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&reservationTx{tx: tx})
	})
}

func (r *reservationRepository) Get(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE r.id = $1 AND ($2::uuid IS NULL OR r.user_id = $2)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return getOne(ctx, r.pool, q, id, ownerID)
}

func (r *reservationRepository) HasConflict(ctx context.Context, days domain.DayRange, excludeID *uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return hasConflict(ctx, r.pool, days, excludeID)
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Reservation, error) {
	limit, offset = page(limit, offset)
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE r.user_id = $1
	ORDER BY r.since DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *reservationRepository) ListAll(ctx context.Context, state *domain.State, limit, offset int) ([]domain.Reservation, error) {
	limit, offset = page(limit, offset)
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE ($1::text IS NULL OR r.state = $1)
	ORDER BY r.since DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, state, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *reservationRepository) ListInDays(ctx context.Context, days domain.DayRange) ([]domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE ` + activeOverlap + `
	ORDER BY r.since ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, days.Start, days.End)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// CurrentOccupant matches both ends inclusively. On a shared turnover
// instant the later arrival wins.
func (r *reservationRepository) CurrentOccupant(ctx context.Context, now time.Time) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE r.state = 'ACTIVE' AND r.since <= $1 AND r.until >= $1
	ORDER BY r.since DESC LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return getOne(ctx, r.pool, q, now)
}

func (r *reservationRepository) ClosestForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE r.user_id = $1 AND r.state = 'ACTIVE' AND r.since >= $2
	ORDER BY r.since ASC LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return getOne(ctx, r.pool, q, userID, now)
}

func (r *reservationRepository) ListStartingOn(ctx context.Context, day time.Time) ([]domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE r.state = 'ACTIVE' AND r.since_day = $1::date
	ORDER BY r.since ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, day)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// PreviousGuests suggests guest rows by name prefix. Guests are matched by
// their name only, so one person booked under two spellings shows up twice.
func (r *reservationRepository) PreviousGuests(ctx context.Context, ownerID *uuid.UUID, search string, limit int) ([]domain.Guest, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	const q = `SELECT name, email FROM (
		SELECT DISTINCT ON (lower(g.name)) g.name, COALESCE(g.email, '') AS email, r.since
		FROM guests g JOIN reservations r ON r.id = g.reservation_id
		WHERE ($1::uuid IS NULL OR r.user_id = $1)
		AND g.name ILIKE $2 ESCAPE '\'
		ORDER BY lower(g.name), r.since DESC
	) latest
	ORDER BY since DESC LIMIT $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, ownerID, likePrefix(search), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guests []domain.Guest
	for rows.Next() {
		var g domain.Guest
		if err := rows.Scan(&g.Name, &g.Email); err != nil {
			return nil, err
		}
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

type reservationTx struct {
	tx pgx.Tx
}

func (t *reservationTx) LockCalendar(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, calendarLockKey)
	return err
}

func (t *reservationTx) HasConflict(ctx context.Context, days domain.DayRange, excludeID *uuid.UUID) (bool, error) {
	return hasConflict(ctx, t.tx, days, excludeID)
}

func (t *reservationTx) Insert(ctx context.Context, res *domain.Reservation, days domain.DayRange) error {
	const q = `INSERT INTO reservations (id, user_id, since, until, since_day, until_day, state)
	VALUES ($1, $2, $3, $4, $5::date, $6::date, $7)
	RETURNING created_at, updated_at`

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, q,
		res.ID, res.UserID, res.Since, res.Until, days.Start, days.End, res.State,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	return mapWriteError(err)
}

func (t *reservationTx) GetForUpdate(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + reservationFrom + `
	WHERE r.id = $1 AND ($2::uuid IS NULL OR r.user_id = $2)
	FOR UPDATE OF r`

	return getOne(ctx, t.tx, q, id, ownerID)
}

func (t *reservationTx) UpdateStay(ctx context.Context, res *domain.Reservation, days domain.DayRange) error {
	const q = `UPDATE reservations
	SET since = $2, until = $3, since_day = $4::date, until_day = $5::date, updated_at = now()
	WHERE id = $1
	RETURNING updated_at`

	err := t.tx.QueryRow(ctx, q, res.ID, res.Since, res.Until, days.Start, days.End).Scan(&res.UpdatedAt)
	return mapWriteError(err)
}

// ReplaceGuests deletes every guest row of the reservation and inserts the
// new list in order.
func (t *reservationTx) ReplaceGuests(ctx context.Context, reservationID uuid.UUID, guests []domain.Guest) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM guests WHERE reservation_id = $1`, reservationID); err != nil {
		return err
	}
	if len(guests) == 0 {
		return nil
	}

	const q = `INSERT INTO guests (id, reservation_id, position, name, email)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''))`

	batch := &pgx.Batch{}
	for i, g := range guests {
		batch.Queue(q, uuid.New(), reservationID, i, g.Name, g.Email)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *reservationTx) SetState(ctx context.Context, res *domain.Reservation, state domain.State) error {
	const q = `UPDATE reservations SET state = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`

	if err := t.tx.QueryRow(ctx, q, res.ID, state).Scan(&res.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	res.State = state
	return nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}
