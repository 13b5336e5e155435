package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestGenerateToken_Valid(t *testing.T) {
	tok, err := GenerateToken(uuid.New(), "steve", testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestParseToken_Valid(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateToken(id, "steve", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	got, err := claims.PlayerUUID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "steve", claims.Name)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken(uuid.New(), "", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "wrong-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := GenerateToken(uuid.New(), "", testSecret, -time.Second)
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testSecret)
	assert.Error(t, err)
}

func TestParseToken_Empty(t *testing.T) {
	_, err := ParseToken("", testSecret)
	assert.Error(t, err)
}

func TestGenerateToken_DifferentPlayers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	t1, _ := GenerateToken(a, "", testSecret, time.Hour)
	t2, _ := GenerateToken(b, "", testSecret, time.Hour)
	assert.NotEqual(t, t1, t2)

	c1, _ := ParseToken(t1, testSecret)
	c2, _ := ParseToken(t2, testSecret)
	assert.Equal(t, a.String(), c1.Player)
	assert.Equal(t, b.String(), c2.Player)
}

func TestParseToken_RejectsBadPlayerClaim(t *testing.T) {
	claims := &Claims{
		Player: "not-a-uuid",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}
