package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kasuwa/escrow-api/pkg/middleware"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	// Same ordering as the server: the auth layer resolves the user before
	// the limiter runs, so the limiter keys on the user
	router.POST("/api/v1/escrow/purchases",
		func(c *gin.Context) {
			c.Set("userID", c.GetHeader("X-Test-User"))
			c.Next()
		},
		middleware.RateLimit(),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	return router
}

func hit(router *gin.Engine, userID string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/escrow/purchases", nil)
	req.Header.Set("X-Test-User", userID)
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitKeysOnAuthenticatedUser(t *testing.T) {
	router := rateLimitedRouter(t)

	// The escrow limit allows a burst of 5; the 6th immediate request from
	// the same user is rejected
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(router, "limit-user-a"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusBadRequest, hit(router, "limit-user-a"))

	// A different user has their own bucket and is unaffected
	assert.Equal(t, http.StatusOK, hit(router, "limit-user-b"))
}
