package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testSecret = "sk_test_4f1c2a9e0b7d"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{}}`)
	sig := Sign(testSecret, body)

	assert.Len(t, sig, 128, "hex encoded SHA-512")
	assert.NoError(t, Verify(testSecret, body, sig))

	assert.ErrorIs(t, Verify(testSecret, append(body, ' '), sig), ErrInvalidSignature)
	assert.ErrorIs(t, Verify("sk_test_other", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, Verify(testSecret, body, "not-hex"), ErrInvalidSignature)
	assert.ErrorIs(t, Verify("", body, sig), ErrMissingSecret)
}

func TestBuildEvent_MatchesSchema(t *testing.T) {
	for _, typ := range EventTypes {
		t.Run(string(typ), func(t *testing.T) {
			body, err := BuildEvent(typ, Params{
				Reference: "ref_123",
				Amount:    500000,
				Email:     "client@example.com",
				BookingID: "bk_1",
			})
			require.NoError(t, err)
			require.NoError(t, ValidatePayload(body))

			event, err := ParseEvent(body)
			require.NoError(t, err)
			assert.Equal(t, typ, event.Event)
			assert.Equal(t, "ref_123", event.Reference())
		})
	}
}

func TestBuildEvent_ChargeData(t *testing.T) {
	body, err := BuildEvent(ChargeSuccess, Params{Amount: 250000, Email: "a@b.co", BookingID: "bk_9"})
	require.NoError(t, err)

	event, err := ParseEvent(body)
	require.NoError(t, err)

	var charge Charge
	require.NoError(t, json.Unmarshal(event.Data, &charge))
	assert.Equal(t, "NGN", charge.Currency)
	assert.Equal(t, "success", charge.Status)
	assert.NotEmpty(t, charge.Reference)
	assert.NotEmpty(t, charge.PaidAt)
	assert.Equal(t, "bk_9", charge.Metadata["bookingId"])

	_, err = BuildEvent("subscription.create", Params{})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestValidatePayload_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown event", `{"event":"subscription.create","data":{}}`},
		{"missing data", `{"event":"charge.success"}`},
		{"charge without customer", `{"event":"charge.success","data":{"reference":"r","amount":100,"currency":"NGN","status":"success"}}`},
		{"zero amount", `{"event":"refund.processed","data":{"transaction_reference":"r","amount":0,"currency":"NGN","status":"processed"}}`},
		{"lowercase currency", `{"event":"transfer.success","data":{"reference":"r","transfer_code":"TRF_1","amount":100,"currency":"ngn","status":"success","recipient":{"recipient_code":"RCP_1"}}}`},
		{"not json", `event=charge.success`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidatePayload([]byte(tt.body)), ErrInvalidPayload)
		})
	}
}

func post(t *testing.T, h http.Handler, path string, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReceiver(t *testing.T) {
	var received []Event
	rc := NewReceiver(testSecret, discardLogger(), func(_ context.Context, e Event) error {
		received = append(received, e)
		return nil
	})
	h := rc.Routes()

	valid, err := BuildEvent(TransferSuccess, Params{Reference: "po_1", Amount: 450000})
	require.NoError(t, err)
	invalid := []byte(`{"event":"charge.success","data":{"reference":"r"}}`)

	tests := []struct {
		name string
		path string
		body []byte
		sig  string
		want int
	}{
		{"valid", "/webhooks/paystack", valid, Sign(testSecret, valid), http.StatusOK},
		{"next.js path", "/api/webhooks/paystack", valid, Sign(testSecret, valid), http.StatusOK},
		{"missing signature", "/webhooks/paystack", valid, "", http.StatusUnauthorized},
		{"wrong secret", "/webhooks/paystack", valid, Sign("sk_test_other", valid), http.StatusUnauthorized},
		{"schema violation", "/webhooks/paystack", invalid, Sign(testSecret, invalid), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body, tt.sig)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	require.Len(t, received, 2)
	assert.Equal(t, "po_1", received[0].Reference())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReceiver_HandlerFailureAndPanic(t *testing.T) {
	body, err := BuildEvent(ChargeFailed, Params{Amount: 1000, Email: "a@b.co"})
	require.NoError(t, err)

	failing := NewReceiver(testSecret, discardLogger(), func(context.Context, Event) error {
		return errors.New("db down")
	}).Routes()
	assert.Equal(t, http.StatusInternalServerError, post(t, failing, "/webhooks/paystack", body, Sign(testSecret, body)).Code)

	panicking := NewReceiver(testSecret, discardLogger(), func(context.Context, Event) error {
		panic("boom")
	}).Routes()
	assert.Equal(t, http.StatusInternalServerError, post(t, panicking, "/webhooks/paystack", body, Sign(testSecret, body)).Code)
}

func TestSender(t *testing.T) {
	var signatures []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sig := r.Header.Get(SignatureHeader)
		signatures = append(signatures, sig)
		if Verify(testSecret, body, sig) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	charge, err := BuildEvent(ChargeSuccess, Params{Amount: 500000, Email: "a@b.co"})
	require.NoError(t, err)
	transfer, err := BuildEvent(TransferSuccess, Params{Amount: 450000})
	require.NoError(t, err)

	s := NewSender(srv.URL, testSecret, rate.Inf, discardLogger())
	responses, err := s.Replay(context.Background(), [][]byte{charge, transfer})
	require.NoError(t, err)
	require.Len(t, responses, 2)

	assert.Equal(t, ChargeSuccess, responses[0].Event)
	assert.Equal(t, http.StatusOK, responses[0].Status)
	assert.Equal(t, `{"received":true}`, responses[0].Body)
	assert.Equal(t, TransferSuccess, responses[1].Event)
	assert.Len(t, signatures, 2)
}

func TestSender_Pacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	body, err := BuildEvent(ChargeSuccess, Params{Amount: 100, Email: "a@b.co"})
	require.NoError(t, err)
	bodies := [][]byte{body, body, body}

	tests := []struct {
		name    string
		rps     rate.Limit
		atLeast time.Duration
		under   time.Duration
	}{
		{name: "finite rate spaces sends", rps: 20, atLeast: 90 * time.Millisecond, under: 5 * time.Second},
		{name: "zero disables pacing", rps: 0, under: 2 * time.Second},
		{name: "negative disables pacing", rps: -1, under: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			responses, err := NewSender(srv.URL, testSecret, tt.rps, discardLogger()).Replay(context.Background(), bodies)
			elapsed := time.Since(start)

			require.NoError(t, err)
			require.Len(t, responses, len(bodies))
			assert.GreaterOrEqual(t, elapsed, tt.atLeast)
			assert.Less(t, elapsed, tt.under)
		})
	}
}

func TestSender_Errors(t *testing.T) {
	body, err := BuildEvent(ChargeSuccess, Params{Amount: 100, Email: "a@b.co"})
	require.NoError(t, err)

	_, err = NewSender("http://127.0.0.1:1", "", rate.Inf, discardLogger()).Send(context.Background(), body)
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewSender("http://127.0.0.1:1", testSecret, rate.Inf, discardLogger()).Send(context.Background(), []byte(`{"event":"nope"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSender("http://127.0.0.1:1", testSecret, 1, discardLogger()).Send(ctx, body)
	assert.Error(t, err)
}
