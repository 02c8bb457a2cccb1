// Package rtc mints short-lived access tokens for the external voice/video
// provider. The token is a pure function of the app credentials, channel,
// user, and expiry; the provider verifies the HMAC on its side.
package rtc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const tokenVersion = "007"

// Credentials holds the provider app identity.
type Credentials struct {
	AppID          string
	AppCertificate string
}

// Token is handed to the client verbatim.
type Token struct {
	Token   string `json:"token"`
	UID     uint   `json:"uid"`
	Channel string `json:"channel"`
	AppID   string `json:"app_id"`
}

var ErrNotConfigured = errors.New("rtc: app credentials not configured")

// Mint builds a token for (channel, userID) valid for ttl. The payload is
// app_id|channel|uid|expiry and the signature is HMAC-SHA256 keyed with the
// app certificate.
func Mint(creds Credentials, channel string, userID uint, ttl time.Duration) (*Token, error) {
	if creds.AppID == "" || creds.AppCertificate == "" {
		return nil, ErrNotConfigured
	}
	if channel == "" {
		return nil, errors.New("rtc: channel name required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	expiry := uint32(time.Now().Add(ttl).Unix())
	payload := buildPayload(creds.AppID, channel, userID, expiry)
	sig := sign(creds.AppCertificate, payload)

	raw := make([]byte, 0, len(payload)+len(sig))
	raw = append(raw, payload...)
	raw = append(raw, sig...)

	return &Token{
		Token:   tokenVersion + creds.AppID + base64.StdEncoding.EncodeToString(raw),
		UID:     userID,
		Channel: channel,
		AppID:   creds.AppID,
	}, nil
}

func buildPayload(appID, channel string, userID uint, expiry uint32) []byte {
	msg := fmt.Sprintf("%s|%s|%d|", appID, channel, userID)
	buf := make([]byte, 0, len(msg)+4)
	buf = append(buf, msg...)
	buf = binary.BigEndian.AppendUint32(buf, expiry)
	return buf
}

func sign(cert string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(cert))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify checks a token minted by this process. Only used in tests and
// local diagnostics; the provider performs its own verification.
func Verify(creds Credentials, token string, channel string, userID uint) bool {
	prefix := tokenVersion + creds.AppID
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(token[len(prefix):])
	if err != nil || len(raw) <= sha256.Size {
		return false
	}
	payload := raw[:len(raw)-sha256.Size]
	sig := raw[len(raw)-sha256.Size:]
	if !hmac.Equal(sig, sign(creds.AppCertificate, payload)) {
		return false
	}
	if len(payload) < 4 {
		return false
	}
	expiry := binary.BigEndian.Uint32(payload[len(payload)-4:])
	if time.Now().Unix() > int64(expiry) {
		return false
	}
	expected := fmt.Sprintf("%s|%s|%d|", creds.AppID, channel, userID)
	return string(payload[:len(payload)-4]) == expected
}
