package errors

import stderrors "errors"

// Class groups errors by how callers should react to them.
type Class string

const (
	ClassAuthorization Class = "authorization"
	ClassState         Class = "state"
	ClassValidation    Class = "validation"
	ClassIntegrity     Class = "integrity"
	ClassThrottle      Class = "throttle"
	ClassInternal      Class = "internal"
)

var (
	ErrUnauthorized           = stderrors.New("exchange: unauthorized")
	ErrInsufficientSignatures = stderrors.New("exchange: insufficient signatures")
	ErrNotInitialized         = stderrors.New("exchange: admin registry not initialized")

	ErrInvalidOfferStatus   = stderrors.New("exchange: invalid offer status")
	ErrInvalidDisputeStatus = stderrors.New("exchange: invalid dispute status")
	ErrAlreadyInitialized   = stderrors.New("exchange: already initialized")
	ErrDisputeAlreadyExists = stderrors.New("exchange: dispute already exists")
	ErrEscrowExists         = stderrors.New("exchange: escrow already exists")
	ErrNotFound             = stderrors.New("exchange: not found")

	ErrInvalidAmount        = stderrors.New("exchange: invalid amount")
	ErrInvalidCurrencyCode  = stderrors.New("exchange: invalid currency code")
	ErrInputTooLong         = stderrors.New("exchange: input too long")
	ErrInvalidAuthority     = stderrors.New("exchange: invalid authority")
	ErrInvalidJurorSet      = stderrors.New("exchange: invalid juror set")
	ErrTooManyEvidenceItems = stderrors.New("exchange: too many evidence items")

	ErrInvalidEscrowBalance = stderrors.New("exchange: invalid escrow balance")
	ErrTiedVote             = stderrors.New("exchange: tied vote")
	ErrInsufficientFunds    = stderrors.New("exchange: insufficient funds")
	ErrMathOverflow         = stderrors.New("exchange: math overflow")

	ErrCooldownActive = stderrors.New("exchange: cooldown active")
	ErrModulePaused   = stderrors.New("exchange: module paused")
)

type entry struct {
	err   error
	code  string
	class Class
}

var taxonomy = []entry{
	{ErrUnauthorized, "Unauthorized", ClassAuthorization},
	{ErrInsufficientSignatures, "InsufficientSignatures", ClassAuthorization},
	{ErrNotInitialized, "NotInitialized", ClassAuthorization},
	{ErrInvalidOfferStatus, "InvalidOfferStatus", ClassState},
	{ErrInvalidDisputeStatus, "InvalidDisputeStatus", ClassState},
	{ErrAlreadyInitialized, "AlreadyInitialized", ClassState},
	{ErrDisputeAlreadyExists, "DisputeAlreadyExists", ClassState},
	{ErrEscrowExists, "EscrowExists", ClassState},
	{ErrNotFound, "NotFound", ClassState},
	{ErrInvalidAmount, "InvalidAmount", ClassValidation},
	{ErrInvalidCurrencyCode, "InvalidCurrencyCode", ClassValidation},
	{ErrInputTooLong, "InputTooLong", ClassValidation},
	{ErrInvalidAuthority, "InvalidAuthority", ClassValidation},
	{ErrInvalidJurorSet, "InvalidJurorSet", ClassValidation},
	{ErrTooManyEvidenceItems, "TooManyEvidenceItems", ClassValidation},
	{ErrInvalidEscrowBalance, "InvalidEscrowBalance", ClassIntegrity},
	{ErrTiedVote, "TiedVote", ClassIntegrity},
	{ErrInsufficientFunds, "InsufficientFunds", ClassIntegrity},
	{ErrMathOverflow, "MathOverflow", ClassIntegrity},
	{ErrCooldownActive, "CooldownActive", ClassThrottle},
	{ErrModulePaused, "ModulePaused", ClassThrottle},
}

func lookup(err error) (entry, bool) {
	if err == nil {
		return entry{}, false
	}
	for _, e := range taxonomy {
		if stderrors.Is(err, e.err) {
			return e, true
		}
	}
	return entry{}, false
}

// Code returns the stable identifier of the first known sentinel wrapped by
// err, or "Internal" for anything else.
func Code(err error) string {
	if e, ok := lookup(err); ok {
		return e.code
	}
	return "Internal"
}

// ClassOf reports the class of err. Unknown errors are internal.
func ClassOf(err error) Class {
	if e, ok := lookup(err); ok {
		return e.class
	}
	return ClassInternal
}
