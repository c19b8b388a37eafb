package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
)

// Signer produces the HMAC signatures exchanges require on private
// endpoints. The payload layout (timestamp + path + body, or an auth frame)
// is the vendor facade's business; only the digest lives here.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer over the API secret.
func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

// SHA256 returns the hex-encoded HMAC-SHA256 of the payload.
func (s Signer) SHA256(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SHA384 returns the hex-encoded HMAC-SHA384 of the payload.
func (s Signer) SHA384(payload string) string {
	mac := hmac.New(sha512.New384, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
