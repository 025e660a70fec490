package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Sign computes the X-Rekko-Signature header value over "<unix timestamp>.<payload>"
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature and rejects timestamps older than tolerance.
// A zero tolerance disables the age check.
func Verify(secret string, timestamp int64, payload []byte, signature string, tolerance time.Duration) bool {
	if tolerance > 0 && time.Since(time.Unix(timestamp, 0)) > tolerance {
		return false
	}
	expectedSignature := Sign(secret, timestamp, payload)
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}
