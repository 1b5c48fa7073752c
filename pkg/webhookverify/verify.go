// Package webhookverify authenticates inbound payment-provider callbacks.
// Strategies are provider-agnostic: plain HMAC, timestamped HMAC with a
// replay window, and a rotating-cert variant gated on a cert URL allowlist.
package webhookverify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingSignature indicates a required signature header was absent
	// or malformed.
	ErrMissingSignature = errors.New("webhook signature missing or malformed")
	// ErrSignatureMismatch indicates the computed signature did not match.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	// ErrReplayTooOld indicates the event timestamp fell outside the replay
	// window; rejected even when the signature is valid.
	ErrReplayTooOld = errors.New("webhook timestamp outside replay window")
	// ErrCertURLNotAllowed indicates the signing-cert URL host is not on the
	// provider allowlist.
	ErrCertURLNotAllowed = errors.New("webhook cert url not allowlisted")
)

// Verifier authenticates an inbound webhook request.
type Verifier interface {
	Verify(header http.Header, body []byte) error
}

// HMACVerifier checks a hex-encoded HMAC-SHA256 of the raw payload carried
// in a single header.
type HMACVerifier struct {
	Header string
	Secret string
}

func (v HMACVerifier) Verify(header http.Header, body []byte) error {
	sig := strings.TrimSpace(header.Get(v.Header))
	if sig == "" || v.Secret == "" {
		return ErrMissingSignature
	}
	expected := computeHMAC(v.Secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrSignatureMismatch
	}
	return nil
}

// TimestampVerifier checks a "t=<unix>,v1=<hex>" header where the signed
// message is "<t>.<body>". Events older than ReplayWindow are rejected even
// with a valid signature.
type TimestampVerifier struct {
	Header       string
	Secret       string
	ReplayWindow time.Duration
	Now          func() time.Time
}

func (v TimestampVerifier) Verify(header http.Header, body []byte) error {
	raw := strings.TrimSpace(header.Get(v.Header))
	if raw == "" || v.Secret == "" {
		return ErrMissingSignature
	}

	var ts int64
	var sig string
	for _, part := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrMissingSignature
			}
			ts = parsed
		case "v1":
			sig = value
		}
	}
	if ts == 0 || sig == "" {
		return ErrMissingSignature
	}

	message := fmt.Sprintf("%d.%s", ts, body)
	expected := computeHMAC(v.Secret, []byte(message))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrSignatureMismatch
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	window := v.ReplayWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	age := now().Sub(time.Unix(ts, 0))
	if age > window || age < -window {
		return ErrReplayTooOld
	}
	return nil
}

// CertVerifier handles providers that sign with a rotating certificate and
// advertise the cert location in a header. The cert URL host must be on the
// allowlist and the transmission timestamp inside the replay window before
// the cert-based signature check runs.
type CertVerifier struct {
	TransmissionIDHeader string
	TimestampHeader      string
	SignatureHeader      string
	CertURLHeader        string
	AllowedHosts         []string
	ReplayWindow         time.Duration
	Now                  func() time.Time

	// VerifySignature performs the cert-based check once the envelope has
	// been validated. transmissionID and timestamp are the trusted header
	// values; body is the raw payload.
	VerifySignature func(certURL, transmissionID, timestamp string, body, signature []byte) error
}

func (v CertVerifier) Verify(header http.Header, body []byte) error {
	transmissionID := strings.TrimSpace(header.Get(v.TransmissionIDHeader))
	timestamp := strings.TrimSpace(header.Get(v.TimestampHeader))
	signature := strings.TrimSpace(header.Get(v.SignatureHeader))
	certURL := strings.TrimSpace(header.Get(v.CertURLHeader))
	if transmissionID == "" || timestamp == "" || signature == "" || certURL == "" {
		return ErrMissingSignature
	}

	parsed, err := url.Parse(certURL)
	if err != nil || parsed.Scheme != "https" {
		return ErrCertURLNotAllowed
	}
	if !hostAllowed(parsed.Hostname(), v.AllowedHosts) {
		return ErrCertURLNotAllowed
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return ErrMissingSignature
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	window := v.ReplayWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	age := now().Sub(ts)
	if age > window || age < -window {
		return ErrReplayTooOld
	}

	if v.VerifySignature == nil {
		return ErrSignatureMismatch
	}
	if err := v.VerifySignature(certURL, transmissionID, timestamp, body, []byte(signature)); err != nil {
		return ErrSignatureMismatch
	}
	return nil
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

func computeHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign computes the hex HMAC-SHA256 of payload; exported for the mock
// gateway and tests.
func Sign(secret string, payload []byte) string {
	return computeHMAC(secret, payload)
}
