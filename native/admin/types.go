package admin

import (
	"fmt"

	exchangeerrors "p2pexchange/core/errors"
)

// MaxSecondaryAuthorities bounds the secondary signer set.
const MaxSecondaryAuthorities = 2

// Registry is the singleton authority record of the exchange.
type Registry struct {
	Primary            [20]byte
	Secondary          [][20]byte
	RequiredSignatures uint8
	LastRewardUpdate   int64
	InitializedAt      int64
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	out := *r
	out.Secondary = append([][20]byte(nil), r.Secondary...)
	return &out
}

// IsAuthority reports whether addr is the primary or a secondary authority.
func (r *Registry) IsAuthority(addr [20]byte) bool {
	if r == nil || addr == ([20]byte{}) {
		return false
	}
	if addr == r.Primary {
		return true
	}
	for _, s := range r.Secondary {
		if s == addr {
			return true
		}
	}
	return false
}

// Approvals is the set of identities that signed a privileged request.
type Approvals [][20]byte

// Single wraps one signer as an approval set.
func Single(addr [20]byte) Approvals { return Approvals{addr} }

// Contains reports whether addr signed.
func (a Approvals) Contains(addr [20]byte) bool {
	for _, s := range a {
		if s == addr {
			return true
		}
	}
	return false
}

// ValidateAuthorities checks a candidate secondary set and threshold against
// primary.
func ValidateAuthorities(primary [20]byte, secondary [][20]byte, required uint8) error {
	if len(secondary) > MaxSecondaryAuthorities {
		return fmt.Errorf("%w: at most %d secondary authorities", exchangeerrors.ErrInputTooLong, MaxSecondaryAuthorities)
	}
	if required == 0 || int(required) > 1+len(secondary) {
		return fmt.Errorf("%w: required signatures %d outside 1..%d", exchangeerrors.ErrInvalidAmount, required, 1+len(secondary))
	}
	seen := make(map[[20]byte]struct{}, len(secondary))
	for _, s := range secondary {
		if s == ([20]byte{}) {
			return fmt.Errorf("%w: zero address", exchangeerrors.ErrInvalidAuthority)
		}
		if s == primary {
			return fmt.Errorf("%w: secondary equals primary", exchangeerrors.ErrInvalidAuthority)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: duplicate secondary", exchangeerrors.ErrInvalidAuthority)
		}
		seen[s] = struct{}{}
	}
	return nil
}

type storedRegistry struct {
	Primary            [20]byte
	Secondary          [][20]byte
	RequiredSignatures uint8
	LastRewardUpdate   uint64
	InitializedAt      uint64
}

func (s *storedRegistry) toRegistry() *Registry {
	return &Registry{
		Primary:            s.Primary,
		Secondary:          append([][20]byte(nil), s.Secondary...),
		RequiredSignatures: s.RequiredSignatures,
		LastRewardUpdate:   int64(s.LastRewardUpdate),
		InitializedAt:      int64(s.InitializedAt),
	}
}

func newStoredRegistry(r *Registry) *storedRegistry {
	return &storedRegistry{
		Primary:            r.Primary,
		Secondary:          append([][20]byte(nil), r.Secondary...),
		RequiredSignatures: r.RequiredSignatures,
		LastRewardUpdate:   uint64(r.LastRewardUpdate),
		InitializedAt:      uint64(r.InitializedAt),
	}
}
