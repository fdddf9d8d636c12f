package ticket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, exp, err := signer.Sign("registration", "reg-1", map[string]string{"event": "Hackathon"})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "registration", claims.Kind)
	assert.Equal(t, "reg-1", claims.Subject)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(claims.Payload, &payload))
	assert.Equal(t, "Hackathon", payload["event"])
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Sign("order", "ORD-1", nil)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[1] = "9999999999"
	_, err = signer.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = NewSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = signer.Verify("garbage")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyExpired(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	token, _, err := signer.Sign("order", "ORD-1", nil)
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSignRequiresSecret(t *testing.T) {
	_, _, err := NewSigner("", time.Minute).Sign("order", "ORD-1", nil)
	assert.Error(t, err)
}
