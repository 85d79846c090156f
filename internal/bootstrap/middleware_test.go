package bootstrap_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jhaanurag/remote-keyboard-web/internal/bootstrap"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedRouter(t *testing.T) (*gin.Engine, *test.Hook) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	router := gin.New()
	router.Use(bootstrap.LoggerMiddleware(log))
	router.GET("/api/rooms/:roomCode/events", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/rooms/:roomCode/events", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	return router, hook
}

func TestLoggerMiddleware_RoomFields(t *testing.T) {
	router, hook := newLoggedRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/abcd/events?since=3", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "abcd", entry.Data["room_code"])
	assert.Equal(t, "3", entry.Data["since"])
	assert.Equal(t, "/api/rooms/:roomCode/events", entry.Data["route"])
}

func TestLoggerMiddleware_RateLimitedIsWarn(t *testing.T) {
	router, hook := newLoggedRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/rooms/1234/events", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Rate limited", entry.Message)
	assert.Equal(t, "1234", entry.Data["room_code"])
	_, hasSince := entry.Data["since"]
	assert.False(t, hasSince)
}

func TestLoggerMiddleware_UnknownRouteHasNoRoom(t *testing.T) {
	router, hook := newLoggedRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	_, hasRoom := entry.Data["room_code"]
	assert.False(t, hasRoom)
}
