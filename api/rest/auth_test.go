package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	mw "github.com/kasuganosora/questforge/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken(t *testing.T) {
	s := newServer(t)
	id := uuid.New()
	tok := s.token(t, id, "Steve")

	claims, err := mw.ParseToken(tok, s.sec.JWTSecret)
	require.NoError(t, err)
	got, err := claims.PlayerUUID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "Steve", claims.Name)

	exists, err := s.cache.Exists(context.Background(), mw.SessionKey(tok))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIssueToken_Validation(t *testing.T) {
	s := newServer(t)

	w := s.admin(http.MethodPost, "/api/admin/tokens", map[string]string{"player": "nope", "name": "Steve"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/tokens", map[string]string{"player": uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/admin/tokens", map[string]string{"player": uuid.NewString(), "name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, uuid.New(), "Steve")

	w := s.as(tok, http.MethodPost, "/api/player/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.as(tok, http.MethodGet, "/api/player/quests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	id := uuid.New()
	old := s.token(t, id, "Steve")

	w := s.as(old, http.MethodPost, "/api/player/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fresh, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, fresh)
	assert.NotEqual(t, old, fresh)

	w = s.as(old, http.MethodGet, "/api/player/quests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.as(fresh, http.MethodGet, "/api/player/quests", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	claims, err := mw.ParseToken(fresh, s.sec.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "Steve", claims.Name)
}
