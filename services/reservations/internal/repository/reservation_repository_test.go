package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/database"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "Jan%", likePrefix(" Jan "))
	assert.Equal(t, `50\%\_off\\%`, likePrefix(`50%_off\`))
	assert.Equal(t, "%", likePrefix(""))
}

func TestPage(t *testing.T) {
	l, o := page(0, -5)
	assert.Equal(t, 20, l)
	assert.Equal(t, 0, o)

	l, o = page(500, 40)
	assert.Equal(t, 20, l)
	assert.Equal(t, 40, o)
}

// Tests below truncate every table of TEST_DATABASE_URL.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, config.DatabaseConfig{URL: url, MaxConns: 8})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `TRUNCATE guests, reservations, users CASCADE`)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash, first_name, last_name) VALUES ($1, $2, 'x', 'Ola', 'Nowak')`,
		id, id.String()+"@example.com")
	require.NoError(t, err)
	return id
}

func insert(ctx context.Context, repo ReservationRepository, userID uuid.UUID, since, until time.Time, guests ...string) (*domain.Reservation, error) {
	cal := domain.NewCalendar(time.UTC)
	res := &domain.Reservation{UserID: userID, Since: since, Until: until, State: domain.StateActive}
	for _, g := range guests {
		res.Guests = append(res.Guests, domain.Guest{Name: g})
	}
	err := repo.RunInTx(ctx, func(tx Tx) error {
		if err := tx.LockCalendar(ctx); err != nil {
			return err
		}
		if err := tx.Insert(ctx, res, cal.Stay(since, until)); err != nil {
			return err
		}
		return tx.ReplaceGuests(ctx, res.ID, res.Guests)
	})
	return res, err
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestReservationRepository_ExclusionConstraint(t *testing.T) {
	pool := testPool(t)
	repo := NewReservationRepository(pool)
	ctx := context.Background()
	user := seedUser(t, pool)

	first, err := insert(ctx, repo, user, date("2024-07-01").Add(14*time.Hour), date("2024-07-08").Add(10*time.Hour), "Jan", "Anna")
	require.NoError(t, err)

	_, err = insert(ctx, repo, user, date("2024-07-07"), date("2024-07-10"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = insert(ctx, repo, user, date("2024-07-08").Add(15*time.Hour), date("2024-07-10"))
	assert.NoError(t, err, "same-day turnover")

	got, err := repo.Get(ctx, first.ID, &user)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []domain.Guest{{Name: "Jan"}, {Name: "Anna"}}, got.Guests)
	assert.Equal(t, "Ola", got.Owner.FirstName)

	stranger := uuid.New()
	got, err = repo.Get(ctx, first.ID, &stranger)
	require.NoError(t, err)
	assert.Nil(t, got)

	conflict, err := repo.HasConflict(ctx, domain.DayRange{Start: date("2024-06-20"), End: date("2024-07-01")}, nil)
	require.NoError(t, err)
	assert.False(t, conflict)

	conflict, err = repo.HasConflict(ctx, domain.DayRange{Start: date("2024-07-03"), End: date("2024-07-05")}, &first.ID)
	require.NoError(t, err)
	assert.False(t, conflict, "a reservation does not conflict with itself")
}

func TestReservationRepository_CancelFreesRange(t *testing.T) {
	pool := testPool(t)
	repo := NewReservationRepository(pool)
	ctx := context.Background()
	user := seedUser(t, pool)

	res, err := insert(ctx, repo, user, date("2024-07-01"), date("2024-07-08"), "Jan")
	require.NoError(t, err)

	err = repo.RunInTx(ctx, func(tx Tx) error {
		locked, err := tx.GetForUpdate(ctx, res.ID, nil)
		if err != nil {
			return err
		}
		return tx.SetState(ctx, locked, domain.StateCanceled)
	})
	require.NoError(t, err)

	_, err = insert(ctx, repo, user, date("2024-07-01"), date("2024-07-08"), "Anna")
	assert.NoError(t, err)

	inRange, err := repo.ListInDays(ctx, domain.DayRange{Start: date("2024-07-01"), End: date("2024-07-31")})
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "Anna", inRange[0].Guests[0].Name)
}

func TestReservationRepository_FailedGuestReplaceRollsBack(t *testing.T) {
	pool := testPool(t)
	repo := NewReservationRepository(pool)
	ctx := context.Background()
	user := seedUser(t, pool)

	res, err := insert(ctx, repo, user, date("2024-07-01"), date("2024-07-08"), "Jan")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.RunInTx(ctx, func(tx Tx) error {
		if err := tx.ReplaceGuests(ctx, res.ID, []domain.Guest{{Name: "Zofia"}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, res.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Guest{{Name: "Jan"}}, got.Guests)
}

func TestReservationRepository_OccupantAndClosest(t *testing.T) {
	pool := testPool(t)
	repo := NewReservationRepository(pool)
	ctx := context.Background()
	user := seedUser(t, pool)

	a, err := insert(ctx, repo, user, date("2024-07-01").Add(14*time.Hour), date("2024-07-08").Add(10*time.Hour), "Jan")
	require.NoError(t, err)
	b, err := insert(ctx, repo, user, date("2024-07-10").Add(14*time.Hour), date("2024-07-12").Add(10*time.Hour), "Anna")
	require.NoError(t, err)

	occ, err := repo.CurrentOccupant(ctx, a.Until)
	require.NoError(t, err)
	require.NotNil(t, occ)
	assert.Equal(t, a.ID, occ.ID)

	occ, err = repo.CurrentOccupant(ctx, date("2024-07-09"))
	require.NoError(t, err)
	assert.Nil(t, occ)

	closest, err := repo.ClosestForUser(ctx, user, date("2024-07-02"))
	require.NoError(t, err)
	require.NotNil(t, closest)
	assert.Equal(t, b.ID, closest.ID)

	starting, err := repo.ListStartingOn(ctx, date("2024-07-10"))
	require.NoError(t, err)
	require.Len(t, starting, 1)
	assert.Equal(t, b.ID, starting[0].ID)

	guests, err := repo.PreviousGuests(ctx, &user, "an", 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.Guest{{Name: "Anna"}}, guests)
}

func TestReservationRepository_ConcurrentCreate(t *testing.T) {
	pool := testPool(t)
	repo := NewReservationRepository(pool)
	ctx := context.Background()
	user := seedUser(t, pool)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = insert(ctx, repo, user, date("2024-09-01"), date("2024-09-05"), "Jan")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}
