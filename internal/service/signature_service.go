package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// signatureVersion prefixes every delivery signature so receivers can
// rotate schemes without breaking verification.
const signatureVersion = "v1"

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes the delivery signature over "{timestamp}.{payload}".
// Returns "v1=<lowercase hex HMAC-SHA256>".
func (s *HMACSignatureService) Sign(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature against the expected value in constant time.
// Accepts the signature with or without the "v1=" prefix stripped by a
// receiver; the scheme tag itself is not secret.
func (s *HMACSignatureService) Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	expected := s.Sign(secret, payload, timestamp)
	if !strings.Contains(signature, "=") {
		signature = signatureVersion + "=" + signature
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// BuildCanonicalString constructs the canonical payload producers sign.
// Format: METHOD|PATH|TIMESTAMP|BODY
func (s *HMACSignatureService) BuildCanonicalString(method, path string, timestamp int64, body string) string {
	return fmt.Sprintf("%s|%s|%d|%s", method, path, timestamp, body)
}
