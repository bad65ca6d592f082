package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/driftline/outreach-backend/internal/apperrors"
)

// verifyHMACHeader checks an hex-encoded HMAC-SHA256 of the raw body carried
// in the named header. Comparison is constant-time.
func verifyHMACHeader(r *http.Request, body []byte, secret, header, providerName string) error {
	got := r.Header.Get(header)
	if got == "" || secret == "" {
		return apperrors.NewWebhookSignature(providerName)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(got), []byte(want)) {
		return apperrors.NewWebhookSignature(providerName)
	}
	return nil
}

// verifyTimestampedHMAC covers vendors that sign timestamp+body (SendGrid's
// event webhook scheme, simplified to the shared-secret variant).
func verifyTimestampedHMAC(r *http.Request, body []byte, secret, sigHeader, tsHeader, providerName string) error {
	sig := r.Header.Get(sigHeader)
	ts := r.Header.Get(tsHeader)
	if sig == "" || ts == "" || secret == "" {
		return apperrors.NewWebhookSignature(providerName)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return apperrors.NewWebhookSignature(providerName)
	}
	return nil
}
