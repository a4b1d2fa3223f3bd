package teamchat

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignatureVersion is the fixed version prefix of the platform's
// signing scheme.
const SignatureVersion = "v0"

// TimestampWindow is the maximum accepted age of a signed request.
// Older requests are treated as replays and rejected.
const TimestampWindow = 5 * time.Minute

// ComputeSignature returns the expected signature for a request body:
// HMAC-SHA256 over "v0:<timestamp>:<raw_body>", rendered as "v0=<hex>".
func ComputeSignature(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(SignatureVersion + ":" + timestamp + ":"))
	h.Write(body)
	return SignatureVersion + "=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks the platform signature of an inbound request.
// Returns ErrInvalidSignature when the MAC mismatches or the timestamp
// falls outside the accepted window. Comparison is constant time.
func VerifySignature(secret, timestamp, signature string, body []byte) error {
	return verifySignatureAt(secret, timestamp, signature, body, time.Now())
}

func verifySignatureAt(secret, timestamp, signature string, body []byte, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := now.Unix() - ts
	if age > int64(TimestampWindow.Seconds()) || age < -int64(TimestampWindow.Seconds()) {
		return ErrInvalidSignature
	}

	expected := ComputeSignature(secret, timestamp, body)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
