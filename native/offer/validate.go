package offer

import (
	"fmt"
	"strings"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/native/common"
)

const (
	// MaxPaymentMethodLength bounds the free-text payment method.
	MaxPaymentMethodLength = 50
	// CurrencyCodeLength is the ISO 4217 code length.
	CurrencyCodeLength = 3
)

// NormalizeCurrency trims code and requires exactly three uppercase ASCII
// letters.
func NormalizeCurrency(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != CurrencyCodeLength {
		return "", fmt.Errorf("%w: %q", exchangeerrors.ErrInvalidCurrencyCode, code)
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] < 'A' || trimmed[i] > 'Z' {
			return "", fmt.Errorf("%w: %q", exchangeerrors.ErrInvalidCurrencyCode, code)
		}
	}
	return trimmed, nil
}

// SanitizeCreate validates the seller-supplied terms and returns a normalised
// copy. Checks run in a fixed order: currency, payment method, amounts.
func SanitizeCreate(p CreateParams) (CreateParams, error) {
	currency, err := NormalizeCurrency(p.FiatCurrency)
	if err != nil {
		return CreateParams{}, err
	}
	method, err := common.BoundedText("payment method", p.PaymentMethod, MaxPaymentMethodLength)
	if err != nil {
		return CreateParams{}, err
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return CreateParams{}, fmt.Errorf("%w: amount must be positive", exchangeerrors.ErrInvalidAmount)
	}
	if p.FiatAmount == 0 {
		return CreateParams{}, fmt.Errorf("%w: fiat amount must be positive", exchangeerrors.ErrInvalidAmount)
	}
	if p.CreatedAt < 0 {
		return CreateParams{}, fmt.Errorf("%w: negative creation time", exchangeerrors.ErrInvalidAmount)
	}
	return CreateParams{
		Amount:        cloneBigInt(p.Amount),
		FiatAmount:    p.FiatAmount,
		FiatCurrency:  currency,
		PaymentMethod: method,
		CreatedAt:     p.CreatedAt,
	}, nil
}
