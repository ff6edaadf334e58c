// Package identity derives the opaque user token that keys every account
// lookup. The token is an HMAC-SHA1 of the credential pair under a process-wide
// secret, rendered as lowercase hex, so credentials are never stored or
// compared in plaintext.
package identity

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
)

// TokenLength is the length of a derived token in hex characters.
const TokenLength = sha1.Size * 2

// Derive computes the user token for the email/token credential pair.
func Derive(email, token, secret string) string {
	return encode(email, token, secret)
}

// DeriveLegacy computes the user token for the in-game credential pair, a
// platform player ID and its player token. Legacy and keyed tokens share one
// format so both flows address the same account space.
func DeriveLegacy(playerID, playerToken, secret string) string {
	return encode(playerID, playerToken, secret)
}

func encode(primary, secondary, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(primary))
	mac.Write([]byte(secondary))
	return hex.EncodeToString(mac.Sum(nil))
}
