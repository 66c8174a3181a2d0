package dingtalk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

// MaxSignatureSkew is how far an inbound timestamp may drift from the local clock.
const MaxSignatureSkew = time.Hour

var (
	// ErrSignatureMissing is returned when an inbound request carries no timestamp or sign header.
	ErrSignatureMissing = errors.New("dingtalk: signature headers missing")
	// ErrSignatureExpired is returned when the inbound timestamp is outside MaxSignatureSkew.
	ErrSignatureExpired = errors.New("dingtalk: signature timestamp out of range")
	// ErrSignatureMismatch is returned when the signature does not match the secret.
	ErrSignatureMismatch = errors.New("dingtalk: signature mismatch")
)

// Sign computes base64(HMAC-SHA256(secret, timestamp + "\n" + secret)).
// timestamp is milliseconds since the epoch, as DingTalk expects.
func Sign(timestamp int64, secret string) string {
	payload := strconv.FormatInt(timestamp, 10) + "\n" + secret
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the timestamp and sign headers of an inbound webhook request.
func Verify(timestampHeader, signHeader, secret string, now time.Time) error {
	if timestampHeader == "" || signHeader == "" {
		return ErrSignatureMissing
	}
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrSignatureMissing
	}
	skew := now.Sub(time.UnixMilli(ts))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSignatureSkew {
		return ErrSignatureExpired
	}
	if !hmac.Equal([]byte(Sign(ts, secret)), []byte(signHeader)) {
		return ErrSignatureMismatch
	}
	return nil
}
