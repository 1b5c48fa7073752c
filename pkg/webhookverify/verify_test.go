package webhookverify

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestHMACVerifierAcceptsValidSignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"paymentID":"TR0011"}`)
	v := HMACVerifier{Header: "X-Signature", Secret: "whsec"}

	header := http.Header{}
	header.Set("X-Signature", Sign("whsec", body))

	if err := v.Verify(header, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestHMACVerifierRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	v := HMACVerifier{Header: "X-Signature", Secret: "whsec"}

	header := http.Header{}
	header.Set("X-Signature", Sign("whsec", []byte(`{"amount":"70.00"}`)))

	err := v.Verify(header, []byte(`{"amount":"1.00"}`))
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestHMACVerifierRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	v := HMACVerifier{Header: "X-Signature", Secret: "whsec"}
	if err := v.Verify(http.Header{}, []byte(`{}`)); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
}

func signedTimestampHeader(secret string, ts int64, body []byte) string {
	message := fmt.Sprintf("%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign(secret, []byte(message)))
}

func TestTimestampVerifierAcceptsFreshEvent(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"paymentID":"TR0011"}`)
	v := TimestampVerifier{
		Header:       "X-Signature",
		Secret:       "whsec",
		ReplayWindow: 5 * time.Minute,
		Now:          func() time.Time { return now },
	}

	header := http.Header{}
	header.Set("X-Signature", signedTimestampHeader("whsec", now.Unix()-60, body))

	if err := v.Verify(header, body); err != nil {
		t.Fatalf("fresh event rejected: %v", err)
	}
}

func TestTimestampVerifierRejectsExpiredEvent(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"paymentID":"TR0011"}`)
	v := TimestampVerifier{
		Header:       "X-Signature",
		Secret:       "whsec",
		ReplayWindow: 5 * time.Minute,
		Now:          func() time.Time { return now },
	}

	// Valid signature, but ten minutes old.
	header := http.Header{}
	header.Set("X-Signature", signedTimestampHeader("whsec", now.Unix()-600, body))

	if err := v.Verify(header, body); !errors.Is(err, ErrReplayTooOld) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestTimestampVerifierRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	v := TimestampVerifier{
		Header:       "X-Signature",
		Secret:       "whsec",
		ReplayWindow: 5 * time.Minute,
		Now:          func() time.Time { return now },
	}

	header := http.Header{}
	header.Set("X-Signature", signedTimestampHeader("whsec", now.Unix(), []byte(`{"a":1}`)))

	if err := v.Verify(header, []byte(`{"a":2}`)); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func certHeader(certURL string, ts time.Time) http.Header {
	header := http.Header{}
	header.Set("Transmission-Id", "tx-1")
	header.Set("Transmission-Time", ts.Format(time.RFC3339))
	header.Set("Transmission-Sig", "sig")
	header.Set("Cert-Url", certURL)
	return header
}

func newCertVerifier(now time.Time) CertVerifier {
	return CertVerifier{
		TransmissionIDHeader: "Transmission-Id",
		TimestampHeader:      "Transmission-Time",
		SignatureHeader:      "Transmission-Sig",
		CertURLHeader:        "Cert-Url",
		AllowedHosts:         []string{"api.provider.com"},
		ReplayWindow:         5 * time.Minute,
		Now:                  func() time.Time { return now },
		VerifySignature: func(certURL, transmissionID, timestamp string, body, signature []byte) error {
			return nil
		},
	}
}

func TestCertVerifierRejectsDisallowedHost(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	v := newCertVerifier(now)

	err := v.Verify(certHeader("https://evil.example.com/cert.pem", now), []byte(`{}`))
	if !errors.Is(err, ErrCertURLNotAllowed) {
		t.Fatalf("expected cert url rejection, got %v", err)
	}
}

func TestCertVerifierRejectsPlainHTTPCertURL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	v := newCertVerifier(now)

	err := v.Verify(certHeader("http://api.provider.com/cert.pem", now), []byte(`{}`))
	if !errors.Is(err, ErrCertURLNotAllowed) {
		t.Fatalf("expected cert url rejection, got %v", err)
	}
}

func TestCertVerifierAcceptsAllowlistedSubdomain(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	v := newCertVerifier(now)

	if err := v.Verify(certHeader("https://certs.api.provider.com/cert.pem", now), []byte(`{}`)); err != nil {
		t.Fatalf("allowlisted subdomain rejected: %v", err)
	}
}

func TestCertVerifierRejectsStaleTransmission(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	v := newCertVerifier(now)

	err := v.Verify(certHeader("https://api.provider.com/cert.pem", now.Add(-10*time.Minute)), []byte(`{}`))
	if !errors.Is(err, ErrReplayTooOld) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestExtractEventIDPreference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"prefers id", `{"id":"evt-1","event_id":"evt-2","transactionId":"tx-3"}`, "evt-1"},
		{"falls back to event_id", `{"event_id":"evt-2","transactionId":"tx-3"}`, "evt-2"},
		{"falls back to transactionId", `{"transactionId":"tx-3"}`, "tx-3"},
		{"empty values skipped", `{"id":"  ","event_id":"evt-2"}`, "evt-2"},
		{"nothing usable", `{"paymentID":"TR0011"}`, ""},
		{"invalid json", `not json`, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractEventID([]byte(tc.body)); got != tc.want {
				t.Fatalf("ExtractEventID = %q, want %q", got, tc.want)
			}
		})
	}
}
