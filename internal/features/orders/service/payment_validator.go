package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"order-engine/internal/features/orders/domain"
)

// ErrInvalidPayment is the base error for a payment context that fails shape
// validation for its method.
var ErrInvalidPayment = errors.New("invalid payment context")

const minCardDigits = 14

// ShapeValidator is the default PaymentValidator: it checks that a payment
// context carries the fields its method requires, without talking to any
// payment provider.
type ShapeValidator struct{}

// Validate implements ports.PaymentValidator.
func (ShapeValidator) Validate(p domain.PaymentContext) error {
	switch p.Method {
	case domain.PaymentCard:
		if countDigits(p.CardNumber) < minCardDigits {
			return fmt.Errorf("card number too short: %w", ErrInvalidPayment)
		}
		if p.CardExpiry == "" {
			return fmt.Errorf("card expiry missing: %w", ErrInvalidPayment)
		}
	case domain.PaymentWallet:
		if !strings.Contains(p.WalletEmail, "@") {
			return fmt.Errorf("wallet email malformed: %w", ErrInvalidPayment)
		}
	case domain.PaymentBankTransfer:
		if p.BankAccount == "" || p.BankRouting == "" {
			return fmt.Errorf("bank account or routing missing: %w", ErrInvalidPayment)
		}
	default:
		if p.Method == "" {
			return fmt.Errorf("payment method missing: %w", ErrInvalidPayment)
		}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
