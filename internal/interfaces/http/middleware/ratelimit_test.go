package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestKeyedRateLimiter_Reserve(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewKeyedRateLimiter(1, 2)
	rl.now = fixedClock(&now)

	ok, _ := rl.Reserve("org-a")
	assert.True(t, ok)
	ok, _ = rl.Reserve("org-a")
	assert.True(t, ok)

	ok, wait := rl.Reserve("org-a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	// other keys have their own bucket
	ok, _ = rl.Reserve("org-b")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = rl.Reserve("org-a")
	assert.True(t, ok)
}

func TestKeyedRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewKeyedRateLimiter(5, 5)
	rl.now = fixedClock(&now)

	rl.Reserve("old")
	now = now.Add(9 * time.Minute)
	rl.Reserve("recent")
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.buckets, 1)
	assert.Contains(t, rl.buckets, "recent")
}

func TestRateLimitByKey(t *testing.T) {
	rl := NewKeyedRateLimiter(0.5, 1)

	router := gin.New()
	router.POST("/webhooks/:organization_id/:entity_type", RateLimitByKey(rl, ParamKey("organization_id")), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	send := func(org string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/"+org+"/products", nil))
		return w
	}

	require.Equal(t, http.StatusAccepted, send("org-a").Code)

	w := send("org-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusAccepted, send("org-b").Code)
}
