package rtc

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{AppID: "app123", AppCertificate: "cert-secret"}

func TestMintAndVerify(t *testing.T) {
	tok, err := Mint(testCreds, "dm-1-2", 42, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, uint(42), tok.UID)
	assert.Equal(t, "dm-1-2", tok.Channel)
	assert.Equal(t, "app123", tok.AppID)
	assert.True(t, Verify(testCreds, tok.Token, "dm-1-2", 42))
}

func TestVerifyRejectsTampering(t *testing.T) {
	tok, err := Mint(testCreds, "dm-1-2", 42, time.Hour)
	require.NoError(t, err)

	// Wrong channel, wrong user, wrong certificate.
	assert.False(t, Verify(testCreds, tok.Token, "other", 42))
	assert.False(t, Verify(testCreds, tok.Token, "dm-1-2", 43))
	bad := Credentials{AppID: "app123", AppCertificate: "wrong"}
	assert.False(t, Verify(bad, tok.Token, "dm-1-2", 42))

	// Corrupted body.
	assert.False(t, Verify(testCreds, tok.Token[:len(tok.Token)-2]+"xx", "dm-1-2", 42))
}

func TestMintRequiresCredentials(t *testing.T) {
	_, err := Mint(Credentials{}, "room", 1, time.Hour)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Mint(testCreds, "", 1, time.Hour)
	assert.Error(t, err)
}

func TestExpiredTokenFailsVerification(t *testing.T) {
	// Negative ttl falls back to an hour inside Mint, so assemble an
	// already-expired token by hand.
	payload := buildPayload(testCreds.AppID, "room", 1, uint32(time.Now().Add(-time.Minute).Unix()))
	sig := sign(testCreds.AppCertificate, payload)
	raw := append(payload, sig...)
	expired := tokenVersion + testCreds.AppID + base64.StdEncoding.EncodeToString(raw)
	assert.False(t, Verify(testCreds, expired, "room", 1))
}
