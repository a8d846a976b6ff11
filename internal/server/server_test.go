package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"studio-api/internal/config"
	"studio-api/internal/crm"
	"studio-api/internal/mq"
	"studio-api/internal/notifier"
	"studio-api/internal/payment"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDB struct {
	status string
}

func (s stubDB) Health() map[string]string { return map[string]string{"status": s.status} }
func (s stubDB) DB() *sql.DB               { return nil }
func (s stubDB) Close() error              { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Env: "test", AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:       config.JWTConfig{Secret: "server-test-secret", AccessExpiry: 15, RefreshExpiry: 7},
		Studio:    config.StudioConfig{Timezone: "America/Los_Angeles", OpeningHour: 10, ClosingHour: 19, SlotInterval: 30, BookingLockTTL: 5, CheckInSecret: "checkin"},
		RateLimit: config.RateLimitConfig{Requests: 5, Window: 60},
	}
}

func testDeps(db stubDB, rdb *redis.Client) Dependencies {
	return Dependencies{
		DB:       db,
		Redis:    rdb,
		Payments: payment.Disabled{},
		Deals:    crm.NewLogPublisher(zap.NewNop()),
		Mailer:   notifier.NewQueue(mq.NewLogPublisher(zap.NewNop())),
	}
}

func getHealth(t *testing.T, h http.Handler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthReportsDatabaseAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	code, body := getHealth(t, NewRouter(testConfig(), zap.NewNop(), testDeps(stubDB{status: "up"}, rdb)))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "up", body["redis"])
}

func TestHealthDegradesWhenDatabaseIsDown(t *testing.T) {
	code, body := getHealth(t, NewRouter(testConfig(), zap.NewNop(), testDeps(stubDB{status: "down"}, nil)))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.NotContains(t, body, "redis")
}

func TestHealthDegradesWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	code, body := getHealth(t, NewRouter(testConfig(), zap.NewNop(), testDeps(stubDB{status: "up"}, rdb)))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["redis"])
}

func TestRouterGuardsProtectedRoutes(t *testing.T) {
	router := NewRouter(testConfig(), zap.NewNop(), testDeps(stubDB{status: "up"}, nil))

	for _, path := range []string{
		"/api/bookings/mine",
		"/api/loyalty",
		"/api/staff/schedule",
		"/api/admin/stats",
		"/api/shop/orders/mine",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}
