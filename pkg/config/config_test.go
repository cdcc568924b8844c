package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROPERTY_TIMEZONE", "Europe/Warsaw")

	cfg := Load()

	assert.Equal(t, 3, cfg.Property.CalendarMonths)
	assert.Equal(t, 2, cfg.Property.ReminderHour)
	assert.Equal(t, []int{1, 3, 7}, cfg.Property.ReminderDays)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, "Europe/Warsaw", cfg.Property.Location().String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REMINDER_DAYS", "2, 5")
	t.Setenv("CALENDAR_MONTHS", "6")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("SERVER_READ_TIMEOUT", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://apartment.example, ")

	cfg := Load()

	assert.Equal(t, []int{2, 5}, cfg.Property.ReminderDays)
	assert.Equal(t, 6, cfg.Property.CalendarMonths)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://apartment.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("REMINDER_DAYS", "1,x,7")
	t.Setenv("CALENDAR_MONTHS", "many")
	t.Setenv("IDEMPOTENCY_TTL", "forever")

	cfg := Load()

	assert.Equal(t, []int{1, 3, 7}, cfg.Property.ReminderDays)
	assert.Equal(t, 3, cfg.Property.CalendarMonths)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
}

func TestPropertyLocation_UnknownZoneIsUTC(t *testing.T) {
	p := PropertyConfig{Timezone: "Mars/Olympus_Mons"}
	assert.Equal(t, time.UTC, p.Location())
}
