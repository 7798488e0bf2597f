package vcli

import (
	"crypto/sha256"
	"encoding/hex"
)

// AuthResponse computes the answer to an authentication challenge:
// hex(sha256(challenge "\n" secret challenge "\n")).
func AuthResponse(challenge, secret []byte) string {
	h := sha256.New()
	h.Write(challenge)
	h.Write([]byte(Newline))
	h.Write(secret)
	h.Write(challenge)
	h.Write([]byte(Newline))
	return hex.EncodeToString(h.Sum(nil))
}

// NewAuthRequest builds the "auth <response>" request for a challenge.
func NewAuthRequest(challenge, secret []byte) *Request {
	return &Request{Command: CmdAuth, Args: []string{AuthResponse(challenge, secret)}}
}
