package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-engine/auth"
	"github.com/brightsmile/clinic-engine/clinic"
)

var testSecret = []byte("test-secret")

func testSession() auth.SessionContext {
	return auth.SessionContext{
		UserID:     "user-1",
		Username:   "frontdesk",
		Role:       clinic.RoleStaff,
		LocationID: "main",
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	token, err := auth.SignToken(testSecret, testSession(), time.Hour)
	require.NoError(t, err)

	got, err := auth.VerifyToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, testSession(), got)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := auth.SignToken(testSecret, testSession(), time.Hour)
	require.NoError(t, err)

	_, err = auth.VerifyToken([]byte("other-secret"), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyToken_Expired(t *testing.T) {
	// A non-positive TTL falls back to the default, so use a tiny one.
	token, err := auth.SignToken(testSecret, testSession(), time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = auth.VerifyToken(testSecret, token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestVerifyToken_Garbage(t *testing.T) {
	_, err := auth.VerifyToken(testSecret, "not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("hunter2hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2hunter2", hash)

	assert.True(t, auth.CheckPassword(hash, "hunter2hunter2"))
	assert.False(t, auth.CheckPassword(hash, "wrong-password"))
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, auth.SessionContext{Role: clinic.RoleAdmin}.IsAdmin())
	assert.False(t, auth.SessionContext{Role: clinic.RoleStaff}.IsAdmin())
}
