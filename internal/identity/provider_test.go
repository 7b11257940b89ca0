package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/pkg/jwt"
)

func newManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager("test-secret", "pawfect", time.Hour)
	require.NoError(t, err)
	return m
}

func TestFromRequest_NoToken(t *testing.T) {
	p := NewProvider(newManager(t))
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)

	id, err := p.FromRequest(r)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestFromRequest_BearerAndQuery(t *testing.T) {
	m := newManager(t)
	p := NewProvider(m)
	token, err := m.GenerateToken("u1", "Alice", "a.png", true)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set(AuthHeaderKey, BearerPrefix+token)
	id, err := p.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{UserID: "u1", DisplayName: "Alice", AvatarURL: "a.png", IsAdmin: true}, id)

	r = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	id, err = p.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
}

func TestFromRequest_InvalidToken(t *testing.T) {
	p := NewProvider(newManager(t))
	r := httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil)

	_, err := p.FromRequest(r)
	assert.True(t, errors.Is(err, ErrInvalidToken))
	assert.True(t, errors.Is(err, jwt.ErrInvalidToken))
}

func TestFromRequest_NoVerifierRejectsTokens(t *testing.T) {
	p := NewProvider(nil)
	r := httptest.NewRequest(http.MethodGet, "/ws?token=anything", nil)

	_, err := p.FromRequest(r)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOptionalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	p := NewProvider(m)

	router := gin.New()
	router.GET("/me", p.OptionalAuth(), func(c *gin.Context) {
		id := FromContext(c)
		if id == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.UserID)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, "anonymous", w.Body.String())

	token, _ := m.GenerateToken("u9", "Nine", "", false)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, "u9", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForJoin(t *testing.T) {
	verified := &domain.Identity{UserID: "u1", DisplayName: "Verified"}
	claimed := &domain.Identity{UserID: "u2", DisplayName: "Claimed"}

	assert.Equal(t, "u1", ForJoin(verified, claimed).UserID)
	assert.Equal(t, "u2", ForJoin(nil, claimed).UserID)

	nameOnly := ForJoin(nil, &domain.Identity{DisplayName: "Kim"})
	assert.True(t, strings.HasPrefix(nameOnly.UserID, "guest-"))
	assert.Equal(t, "Kim", nameOnly.DisplayName)
	assert.True(t, nameOnly.Guest)

	guest := ForJoin(nil, nil)
	assert.True(t, guest.Guest)
	assert.Len(t, guest.UserID, len("guest-")+8)
	assert.NotEqual(t, guest.UserID, ForJoin(nil, nil).UserID)
}
