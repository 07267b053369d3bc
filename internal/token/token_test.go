package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tok, err := Create(CreateParams{Secret: "s3cr3t", SandboxID: "S", SessionID: "T", ExpiresIn: "1h"})
	require.NoError(t, err)

	claims, err := Verify("s3cr3t", tok)
	require.NoError(t, err)
	assert.Equal(t, "S", claims.SandboxID)
	assert.Equal(t, "T", claims.SessionID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
}

func TestExpiredClassifiedSeparatelyFromInvalid(t *testing.T) {
	tok, err := Create(CreateParams{Secret: "s3cr3t", SandboxID: "S", ExpiresIn: "1s"})
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, err = Verify("s3cr3t", tok)
	require.Error(t, err)
	verr, ok := err.(*VerifyError)
	require.True(t, ok)
	assert.Equal(t, FailureExpired, verr.Failure)
}

func TestBadSignatureIsInvalidNotExpired(t *testing.T) {
	tok, err := Create(CreateParams{Secret: "s3cr3t", SandboxID: "S", ExpiresIn: "1h"})
	require.NoError(t, err)

	_, err = Verify("wrong-secret", tok)
	require.Error(t, err)
	verr, ok := err.(*VerifyError)
	require.True(t, ok)
	assert.Equal(t, FailureInvalid, verr.Failure)
}

func TestCreateRejectsEmptySandboxID(t *testing.T) {
	_, err := Create(CreateParams{Secret: "s3cr3t", SandboxID: ""})
	assert.Error(t, err)
}
