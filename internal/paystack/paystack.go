// Package paystack implements the parts of the Paystack webhook contract the
// marketplace consumes: event payloads, signatures and schema validation.
package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// SignatureHeader carries hex(HMAC-SHA512(secret key, raw body)).
const SignatureHeader = "x-paystack-signature"

type EventType string

const (
	ChargeSuccess    EventType = "charge.success"
	ChargeFailed     EventType = "charge.failed"
	TransferSuccess  EventType = "transfer.success"
	TransferFailed   EventType = "transfer.failed"
	TransferReversed EventType = "transfer.reversed"
	RefundProcessed  EventType = "refund.processed"
)

// EventTypes lists every event the marketplace handles.
var EventTypes = []EventType{
	ChargeSuccess, ChargeFailed,
	TransferSuccess, TransferFailed, TransferReversed,
	RefundProcessed,
}

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMissingSecret    = errors.New("PAYSTACK_SECRET_KEY is not set")
)

func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Event is a webhook envelope; Data is decoded per event type.
type Event struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Customer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code,omitempty"`
}

// Charge is the data of charge.* events.
type Charge struct {
	Reference       string         `json:"reference"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	GatewayResponse string         `json:"gateway_response,omitempty"`
	PaidAt          string         `json:"paid_at,omitempty"`
	Channel         string         `json:"channel,omitempty"`
	Customer        Customer       `json:"customer"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type Recipient struct {
	RecipientCode string `json:"recipient_code"`
}

// Transfer is the data of transfer.* events.
type Transfer struct {
	Reference    string    `json:"reference"`
	TransferCode string    `json:"transfer_code"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	Recipient    Recipient `json:"recipient"`
}

// Refund is the data of refund.* events.
type Refund struct {
	TransactionReference string `json:"transaction_reference"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
}

// ParseEvent decodes the envelope and checks the event type is known.
func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := ParseEventType(string(e.Event)); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Reference returns the payment reference the event is about.
func (e Event) Reference() string {
	var ref struct {
		Reference            string `json:"reference"`
		TransactionReference string `json:"transaction_reference"`
	}
	_ = json.Unmarshal(e.Data, &ref)
	if ref.Reference != "" {
		return ref.Reference
	}
	return ref.TransactionReference
}

// Sign returns the signature Paystack sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time.
func Verify(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
