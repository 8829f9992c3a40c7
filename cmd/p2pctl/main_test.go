package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"p2pexchange/crypto"
	"p2pexchange/gateway/auth"
)

func TestRunArgValidation(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"usage", nil, "Usage: p2pctl"},
		{"unknown", []string{"mint"}, "Unknown command: mint"},
		{"keygen_missing_out", []string{"keygen"}, "--out is required"},
		{"address_missing_key", []string{"address"}, "--key is required"},
		{"post_missing_key", []string{"post", "/offers"}, "--key is required"},
		{"get_missing_path", []string{"get"}, "exactly one request path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Fatalf("stderr %q missing %q", stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestKeygenAndSignedPost(t *testing.T) {
	t.Setenv(passphraseEnv, "test passphrase")
	now := time.Unix(1_700_000_000, 0)
	ctlNow = func() time.Time { return now }
	t.Cleanup(func() { ctlNow = time.Now })

	keyPath := filepath.Join(t.TempDir(), "seller.json")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"keygen", "--out", keyPath}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen failed: %s", stderr.String())
	}
	address := strings.TrimSpace(stdout.String())
	expected, err := crypto.ParseExchangeAddress(address)
	if err != nil {
		t.Fatalf("keygen printed invalid address %q: %v", address, err)
	}

	verifier := auth.NewVerifier(time.Minute, func() time.Time { return now })
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		principal, err := verifier.Authenticate(r, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if principal.Caller != expected {
			http.Error(w, "wrong caller", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"status":"created"}`))
	}))
	defer server.Close()

	stdout.Reset()
	stderr.Reset()
	code := run([]string{"post", "--url", server.URL, "--key", keyPath, "--body", `{"amount":"1"}`, "/offers"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("post failed with %d: %s %s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "created") {
		t.Fatalf("unexpected response %q", stdout.String())
	}
}
