// Package market describes the marketplace vocabulary the toolkit inspects:
// status enums as stored by Prisma, the escrow lifecycle and money rules.
package market

import (
	"errors"
	"fmt"
	"strings"
)

type BookingStatus string

const (
	BookingPending              BookingStatus = "PENDING"
	BookingConfirmed            BookingStatus = "CONFIRMED"
	BookingInProgress           BookingStatus = "IN_PROGRESS"
	BookingAwaitingConfirmation BookingStatus = "AWAITING_CONFIRMATION"
	BookingCompleted            BookingStatus = "COMPLETED"
	BookingCancelled            BookingStatus = "CANCELLED"
	BookingDisputed             BookingStatus = "DISPUTED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentEscrow   PaymentStatus = "ESCROW"
	PaymentReleased PaymentStatus = "RELEASED"
	PaymentRefunded PaymentStatus = "REFUNDED"
	PaymentFailed   PaymentStatus = "FAILED"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutCompleted  PayoutStatus = "COMPLETED"
	PayoutFailed     PayoutStatus = "FAILED"
)

type UserRole string

const (
	RoleCustomer UserRole = "CUSTOMER"
	RoleProvider UserRole = "PROVIDER"
	RoleAdmin    UserRole = "ADMIN"
)

type ProviderStatus string

const (
	ProviderPending   ProviderStatus = "PENDING"
	ProviderApproved  ProviderStatus = "APPROVED"
	ProviderSuspended ProviderStatus = "SUSPENDED"
)

// ErrInvalidTransition is returned when a status change is not part of the lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:              {BookingConfirmed, BookingCancelled},
	BookingConfirmed:            {BookingInProgress, BookingCancelled},
	BookingInProgress:           {BookingAwaitingConfirmation, BookingCancelled},
	BookingAwaitingConfirmation: {BookingCompleted, BookingDisputed},
	BookingDisputed:             {BookingCompleted, BookingCancelled},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentEscrow, PaymentFailed},
	PaymentEscrow:  {PaymentReleased, PaymentRefunded},
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:    {PayoutProcessing},
	PayoutProcessing: {PayoutCompleted, PayoutFailed},
	PayoutFailed:     {PayoutPending},
}

func transition[S ~string](table map[S][]S, from, to S) error {
	for _, next := range table[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// BookingTransition validates a booking status change.
func BookingTransition(from, to BookingStatus) error {
	return transition(bookingTransitions, from, to)
}

// PaymentTransition validates a payment status change.
func PaymentTransition(from, to PaymentStatus) error {
	return transition(paymentTransitions, from, to)
}

// PayoutTransition validates a payout status change.
func PayoutTransition(from, to PayoutStatus) error {
	return transition(payoutTransitions, from, to)
}

// EnumValues maps Postgres enum type names (as generated by Prisma) to the
// values the application expects. Order matters: it is the order in which
// missing values are added.
var EnumValues = map[string][]string{
	"BookingStatus": {
		string(BookingPending), string(BookingConfirmed), string(BookingInProgress),
		string(BookingAwaitingConfirmation), string(BookingCompleted),
		string(BookingCancelled), string(BookingDisputed),
	},
	"PaymentStatus": {
		string(PaymentPending), string(PaymentEscrow), string(PaymentReleased),
		string(PaymentRefunded), string(PaymentFailed),
	},
	"PayoutStatus": {
		string(PayoutPending), string(PayoutProcessing), string(PayoutCompleted), string(PayoutFailed),
	},
	"UserRole": {
		string(RoleCustomer), string(RoleProvider), string(RoleAdmin),
	},
	"ProviderStatus": {
		string(ProviderPending), string(ProviderApproved), string(ProviderSuspended),
	},
}

// SupportedCurrencies are the settlement currencies Paystack accepts.
var SupportedCurrencies = []string{"NGN", "GHS", "ZAR", "KES", "USD"}

// IsSupportedCurrency reports whether code is an exact, canonical currency code.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// NormalizeCurrency upper-cases and trims a stored currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PlatformFee returns the platform's cut of amount (minor units), rounded down.
func PlatformFee(amount, feeBPS int64) int64 {
	return amount * feeBPS / 10000
}

// PayoutAmount is what the provider receives once escrow is released.
func PayoutAmount(amount, feeBPS int64) int64 {
	return amount - PlatformFee(amount, feeBPS)
}

// FormatAmount renders minor units as "NGN 1,250.00".
func FormatAmount(currency string, minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	major := minor / 100
	digits := fmt.Sprintf("%d", major)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, b.String(), minor%100)
}
