package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/enums"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestWriteRateLimitBlocksAfterLimitPerActor(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := WriteRateLimit(NewRateLimitPolicy("writes", time.Minute, 2), limiter, nil)(okHandler())
	actor := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBroker}

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/commissions/payouts", nil)
		req = req.WithContext(WithActor(req.Context(), actor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int64(3), limiter.counts["writes:"+actor.UserID.String()])
}

func TestWriteRateLimitIgnoresReads(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := WriteRateLimit(NewRateLimitPolicy("writes", time.Minute, 1), limiter, nil)(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, limiter.counts)
}

func TestWriteRateLimitFallsBackToClientIP(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := WriteRateLimit(NewRateLimitPolicy("", time.Minute, 5), limiter, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(1), limiter.counts["writes:ip:10.0.0.1"])
}

func TestWriteRateLimitSurfacesLimiterErrors(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	handler := WriteRateLimit(NewRateLimitPolicy("writes", time.Minute, 5), limiter, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteRateLimitDisabledPolicy(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := WriteRateLimit(NewRateLimitPolicy("writes", 0, 0), limiter, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, limiter.counts)
}
