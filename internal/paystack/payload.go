package paystack

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Params describe a simulated event. Empty references and codes are generated.
type Params struct {
	Reference     string
	Amount        int64 // kobo
	Currency      string
	Email         string
	BookingID     string
	RecipientCode string
	TransferCode  string
}

var eventStatus = map[EventType]string{
	ChargeSuccess:    "success",
	ChargeFailed:     "failed",
	TransferSuccess:  "success",
	TransferFailed:   "failed",
	TransferReversed: "reversed",
	RefundProcessed:  "processed",
}

func shortID(prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// BuildEvent returns the JSON body Paystack would post for typ.
func BuildEvent(typ EventType, p Params) ([]byte, error) {
	status, ok := eventStatus[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}
	if p.Reference == "" {
		p.Reference = shortID("ops_")
	}
	if p.Currency == "" {
		p.Currency = "NGN"
	}

	var data any
	switch typ {
	case ChargeSuccess, ChargeFailed:
		c := Charge{
			Reference: p.Reference,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Status:    status,
			Channel:   "card",
			Customer:  Customer{Email: p.Email},
		}
		if typ == ChargeSuccess {
			c.GatewayResponse = "Successful"
			c.PaidAt = time.Now().UTC().Format(time.RFC3339)
		} else {
			c.GatewayResponse = "Declined"
		}
		if p.BookingID != "" {
			c.Metadata = map[string]any{"bookingId": p.BookingID}
		}
		data = c
	case TransferSuccess, TransferFailed, TransferReversed:
		if p.RecipientCode == "" {
			p.RecipientCode = shortID("RCP_")
		}
		if p.TransferCode == "" {
			p.TransferCode = shortID("TRF_")
		}
		data = Transfer{
			Reference:    p.Reference,
			TransferCode: p.TransferCode,
			Amount:       p.Amount,
			Currency:     p.Currency,
			Status:       status,
			Reason:       "Marketplace payout",
			Recipient:    Recipient{RecipientCode: p.RecipientCode},
		}
	case RefundProcessed:
		data = Refund{
			TransactionReference: p.Reference,
			Amount:               p.Amount,
			Currency:             p.Currency,
			Status:               status,
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	return json.Marshal(Event{Event: typ, Data: raw})
}
