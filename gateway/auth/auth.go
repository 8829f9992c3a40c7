// Package auth verifies the secp256k1 request signatures that identify the
// caller and the admin approvals of a gateway request.
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"p2pexchange/crypto"
	"p2pexchange/native/admin"
)

const (
	// HeaderTimestamp is the unix timestamp (seconds) covered by the signatures.
	HeaderTimestamp = "X-P2P-Timestamp"
	// HeaderSignature carries one hex-encoded recoverable signature. It may be
	// repeated; the first signer is the caller.
	HeaderSignature = "X-P2P-Signature"
	// MaxBodyForSignature is the largest body the gateway will hash.
	MaxBodyForSignature int = 1 << 20

	// MaxSignatures bounds how many signatures one request may carry: the
	// primary plus every secondary authority.
	MaxSignatures = 1 + admin.MaxSecondaryAuthorities

	defaultTimestampSkew = 2 * time.Minute
)

var (
	ErrMissingTimestamp = errors.New("auth: missing " + HeaderTimestamp + " header")
	ErrMissingSignature = errors.New("auth: missing " + HeaderSignature + " header")
	ErrStaleTimestamp   = errors.New("auth: timestamp outside allowed skew")
	ErrReplayed         = errors.New("auth: request already seen")
	ErrBodyTooLarge     = fmt.Errorf("auth: request body exceeds %d bytes", MaxBodyForSignature)
)

// Principal is the authenticated identity behind a request.
type Principal struct {
	Caller    [20]byte
	Approvals admin.Approvals
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the authentication middleware.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Digest is the message every signature on a request covers.
func Digest(method, path, timestamp string, body []byte) []byte {
	return crypto.Keccak256(
		[]byte(strings.ToUpper(method)), []byte{'\n'},
		[]byte(path), []byte{'\n'},
		[]byte(timestamp), []byte{'\n'},
		body,
	)
}

// Sign produces the header value for key over the request parameters.
func Sign(key *crypto.PrivateKey, method, path, timestamp string, body []byte) (string, error) {
	sig, err := key.Sign(Digest(method, path, timestamp, body))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Verifier authenticates signed requests and rejects replays inside the skew
// window.
type Verifier struct {
	skew  time.Duration
	nowFn func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewVerifier builds a verifier accepting timestamps within skew of now.
func NewVerifier(skew time.Duration, nowFn func() time.Time) *Verifier {
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Verifier{skew: skew, nowFn: nowFn, seen: make(map[string]time.Time)}
}

// Authenticate recovers the signers of r. body must be the full request body.
func (v *Verifier) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, ErrBodyTooLarge
	}
	timestamp := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if timestamp == "" {
		return nil, ErrMissingTimestamp
	}
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid timestamp: %w", err)
	}
	now := v.nowFn()
	if delta := now.Sub(time.Unix(secs, 0)).Abs(); delta > v.skew {
		return nil, fmt.Errorf("%w of %s", ErrStaleTimestamp, v.skew)
	}

	headers := r.Header.Values(HeaderSignature)
	if len(headers) == 0 {
		return nil, ErrMissingSignature
	}
	if len(headers) > MaxSignatures {
		return nil, fmt.Errorf("auth: at most %d signatures accepted", MaxSignatures)
	}
	digest := Digest(r.Method, r.URL.EscapedPath(), timestamp, body)
	principal := &Principal{}
	for _, raw := range headers {
		sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
		if err != nil {
			return nil, fmt.Errorf("auth: invalid signature encoding: %w", err)
		}
		signer, err := crypto.RecoverAddress(digest, sig)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		if principal.Approvals.Contains(signer) {
			continue
		}
		principal.Approvals = append(principal.Approvals, signer)
	}
	principal.Caller = principal.Approvals[0]

	if !v.register(hex.EncodeToString(digest)+hex.EncodeToString(principal.Caller[:]), now) {
		return nil, ErrReplayed
	}
	return principal, nil
}

// register records key and reports whether it was fresh. Entries older than
// twice the skew can no longer pass the timestamp check and are dropped.
func (v *Verifier) register(key string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	cutoff := now.Add(-2 * v.skew)
	for k, at := range v.seen {
		if at.Before(cutoff) {
			delete(v.seen, k)
		}
	}
	if _, dup := v.seen[key]; dup {
		return false
	}
	v.seen[key] = now
	return true
}
