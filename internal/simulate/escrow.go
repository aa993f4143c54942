// Package simulate exercises marketplace flows against a real database
// inside transactions that are rolled back by default.
package simulate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Jeffreasy/MarketplaceOps/internal/market"
	"github.com/Jeffreasy/MarketplaceOps/internal/paystack"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

var (
	ErrStateMismatch  = errors.New("database state does not match the expected lifecycle")
	ErrUnexpectedRows = errors.New("unexpected number of rows affected")
)

type EscrowOptions struct {
	Amount   int64 // kobo
	Currency string
	FeeBPS   int64
	Keep     bool // commit the seeded rows instead of rolling back
}

// State is the lifecycle position read back from the database.
type State struct {
	Booking market.BookingStatus
	Payment market.PaymentStatus
	Payout  market.PayoutStatus // empty until a payout exists
}

func (s State) String() string {
	payout := string(s.Payout)
	if payout == "" {
		payout = "-"
	}
	return fmt.Sprintf("booking=%s payment=%s payout=%s", s.Booking, s.Payment, payout)
}

// Step is one completed lifecycle step.
type Step struct {
	Name  string
	Event paystack.EventType // webhook that drives the step, if any
	State State
}

type EscrowResult struct {
	RunID     string
	BookingID string
	PaymentID string
	PayoutID  string
	Amount    int64
	Fee       int64
	Payout    int64
	Currency  string
	Steps     []Step
	Kept      bool
}

// escrowRun carries ids and the last state read between steps.
type escrowRun struct {
	res           *EscrowResult
	clientID      string
	clientEmail   string
	providerID    string
	recipientCode string
	reference     string
	transferCode  string
	state         State
}

type step struct {
	name    string
	event   paystack.EventType
	booking market.BookingStatus
	payment market.PaymentStatus
	payout  market.PayoutStatus
	exec    func(ctx context.Context, db storage.DB, r *escrowRun) error
}

var escrowSteps = []step{
	{
		name:    "payment captured into escrow",
		event:   paystack.ChargeSuccess,
		booking: market.BookingConfirmed,
		payment: market.PaymentEscrow,
		exec: func(ctx context.Context, db storage.DB, r *escrowRun) error {
			if err := execOne(ctx, db, `UPDATE payments SET status = $2, paid_at = now() WHERE id = $1`,
				r.res.PaymentID, market.PaymentEscrow); err != nil {
				return err
			}
			return setBooking(ctx, db, r, market.BookingConfirmed)
		},
	},
	{
		name:    "provider started the job",
		booking: market.BookingInProgress,
		exec: func(ctx context.Context, db storage.DB, r *escrowRun) error {
			return setBooking(ctx, db, r, market.BookingInProgress)
		},
	},
	{
		name:    "job proof submitted",
		booking: market.BookingAwaitingConfirmation,
		exec: func(ctx context.Context, db storage.DB, r *escrowRun) error {
			if err := execOne(ctx, db, `
				INSERT INTO job_proofs (id, booking_id, provider_id, notes, created_at)
				VALUES ($1, $2, $3, $4, now())`,
				uuid.NewString(), r.res.BookingID, r.providerID, "simulated proof "+r.res.RunID); err != nil {
				return err
			}
			return setBooking(ctx, db, r, market.BookingAwaitingConfirmation)
		},
	},
	{
		name:    "client confirmed, escrow released",
		booking: market.BookingCompleted,
		payment: market.PaymentReleased,
		payout:  market.PayoutPending,
		exec: func(ctx context.Context, db storage.DB, r *escrowRun) error {
			if err := setBooking(ctx, db, r, market.BookingCompleted); err != nil {
				return err
			}
			if err := execOne(ctx, db, `
				UPDATE payments SET status = $2, platform_fee = $3, released_at = now() WHERE id = $1`,
				r.res.PaymentID, market.PaymentReleased, r.res.Fee); err != nil {
				return err
			}
			r.res.PayoutID = uuid.NewString()
			return execOne(ctx, db, `
				INSERT INTO payouts (id, payment_id, provider_id, amount, status, created_at)
				VALUES ($1, $2, $3, $4, $5, now())`,
				r.res.PayoutID, r.res.PaymentID, r.providerID, r.res.Payout, market.PayoutPending)
		},
	},
	{
		name:   "transfer initiated",
		payout: market.PayoutProcessing,
		exec: func(ctx context.Context, db storage.DB, r *escrowRun) error {
			return execOne(ctx, db, `UPDATE payouts SET status = $2, transfer_code = $3 WHERE id = $1`,
				r.res.PayoutID, market.PayoutProcessing, r.transferCode)
		},
	},
	{
		name:   "transfer settled",
		event:  paystack.TransferSuccess,
		payout: market.PayoutCompleted,
		exec: func(ctx context.Context, db storage.DB, r *escrowRun) error {
			return execOne(ctx, db, `UPDATE payouts SET status = $2, completed_at = now() WHERE id = $1`,
				r.res.PayoutID, market.PayoutCompleted)
		},
	},
}

// Escrow seeds a client, an approved provider, a service and a booking, then
// walks the booking through payment, work, confirmation and payout. Every
// transition is checked against the lifecycle before it is written and the
// state is read back after each step.
func Escrow(ctx context.Context, db storage.TxBeginner, opts EscrowOptions, logger *slog.Logger) (*EscrowResult, error) {
	if opts.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", opts.Amount)
	}
	currency := market.NormalizeCurrency(opts.Currency)
	if !market.IsSupportedCurrency(currency) {
		return nil, fmt.Errorf("unsupported currency %q", opts.Currency)
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	res := &EscrowResult{
		RunID:     runID,
		BookingID: uuid.NewString(),
		PaymentID: uuid.NewString(),
		Amount:    opts.Amount,
		Fee:       market.PlatformFee(opts.Amount, opts.FeeBPS),
		Payout:    market.PayoutAmount(opts.Amount, opts.FeeBPS),
		Currency:  currency,
		Kept:      opts.Keep,
	}
	r := &escrowRun{
		res:           res,
		clientID:      uuid.NewString(),
		clientEmail:   "sim-client-" + runID + "@example.com",
		providerID:    uuid.NewString(),
		recipientCode: "RCP_SIM" + strings.ToUpper(runID),
		reference:     "sim_" + runID,
		transferCode:  "TRF_SIM" + strings.ToUpper(runID),
	}

	err := storage.WithDryRun(ctx, db, opts.Keep, func(tx *sql.Tx) error {
		if err := seed(ctx, tx, r); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		state, err := readState(ctx, tx, res.BookingID)
		if err != nil {
			return err
		}
		want := State{Booking: market.BookingPending, Payment: market.PaymentPending}
		if state != want {
			return fmt.Errorf("%w after seeding: got %s, want %s", ErrStateMismatch, state, want)
		}
		r.state = state

		for _, s := range escrowSteps {
			if err := runStep(ctx, tx, r, s); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			logger.Debug("escrow_step_passed", "step", s.name, "state", r.state.String())
		}

		return checkSettlement(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("escrow_simulation_finished", "run_id", runID, "kept", opts.Keep, "steps", len(res.Steps))
	return res, nil
}

func seed(ctx context.Context, db storage.DB, r *escrowRun) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	providerUserID := uuid.NewString()
	categoryID := uuid.NewString()
	serviceID := uuid.NewString()
	id := r.res.RunID

	stmts := []struct {
		query string
		args  []any
	}{
		{
			`INSERT INTO users (id, email, name, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, now())`,
			[]any{r.clientID, r.clientEmail, "Simulated Client " + id, market.RoleCustomer, string(hash)},
		},
		{
			`INSERT INTO users (id, email, name, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, now())`,
			[]any{providerUserID, "sim-provider-" + id + "@example.com", "Simulated Provider " + id, market.RoleProvider, string(hash)},
		},
		{
			`INSERT INTO providers (id, user_id, business_name, status, paystack_recipient_code, created_at) VALUES ($1, $2, $3, $4, $5, now())`,
			[]any{r.providerID, providerUserID, "Simulated Services " + id, market.ProviderApproved, r.recipientCode},
		},
		{
			`INSERT INTO service_categories (id, name, slug, description, is_active) VALUES ($1, $2, $3, '', true)`,
			[]any{categoryID, "Simulation " + id, "sim-" + id},
		},
		{
			`INSERT INTO services (id, name, description, category_id, base_price, is_active, created_at, updated_at) VALUES ($1, $2, '', $3, $4, true, now(), now())`,
			[]any{serviceID, "Simulated Service " + id, categoryID, r.res.Amount},
		},
		{
			`INSERT INTO bookings (id, client_id, provider_id, service_id, status, total_amount, scheduled_date, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, now() + interval '1 day', now(), now())`,
			[]any{r.res.BookingID, r.clientID, r.providerID, serviceID, market.BookingPending, r.res.Amount},
		},
		{
			`INSERT INTO payments (id, booking_id, user_id, amount, currency, status, paystack_ref, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			[]any{r.res.PaymentID, r.res.BookingID, r.clientID, r.res.Amount, r.res.Currency, market.PaymentPending, r.reference},
		},
	}

	for _, s := range stmts {
		if err := execOne(ctx, db, s.query, s.args...); err != nil {
			return err
		}
	}
	return nil
}

func runStep(ctx context.Context, db storage.DB, r *escrowRun, s step) error {
	want := r.state
	if s.booking != "" {
		if err := market.BookingTransition(want.Booking, s.booking); err != nil {
			return err
		}
		want.Booking = s.booking
	}
	if s.payment != "" {
		if err := market.PaymentTransition(want.Payment, s.payment); err != nil {
			return err
		}
		want.Payment = s.payment
	}
	if s.payout != "" {
		// A payout is created in PENDING; later changes follow the lifecycle.
		if want.Payout != "" || s.payout != market.PayoutPending {
			if err := market.PayoutTransition(want.Payout, s.payout); err != nil {
				return err
			}
		}
		want.Payout = s.payout
	}

	if s.event != "" {
		if err := checkWebhook(s.event, r); err != nil {
			return err
		}
	}

	if err := s.exec(ctx, db, r); err != nil {
		return err
	}

	got, err := readState(ctx, db, r.res.BookingID)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrStateMismatch, got, want)
	}

	r.state = got
	r.res.Steps = append(r.res.Steps, Step{Name: s.name, Event: s.event, State: got})
	return nil
}

// checkWebhook builds the payload Paystack would send for the step and
// validates it against the event schema.
func checkWebhook(event paystack.EventType, r *escrowRun) error {
	params := paystack.Params{
		Reference: r.reference,
		Amount:    r.res.Amount,
		Currency:  r.res.Currency,
		Email:     r.clientEmail,
		BookingID: r.res.BookingID,
	}
	if strings.HasPrefix(string(event), "transfer.") {
		params.Reference = r.res.PayoutID
		params.Amount = r.res.Payout
		params.RecipientCode = r.recipientCode
		params.TransferCode = r.transferCode
	}

	body, err := paystack.BuildEvent(event, params)
	if err != nil {
		return err
	}
	return paystack.ValidatePayload(body)
}

func readState(ctx context.Context, db storage.DB, bookingID string) (State, error) {
	var s State
	var booking, payment, payout string
	err := db.QueryRowContext(ctx, `
		SELECT b.status, p.status, COALESCE(o.status::text, '')
		FROM bookings b
		JOIN payments p ON p.booking_id = b.id
		LEFT JOIN payouts o ON o.payment_id = p.id
		WHERE b.id = $1`, bookingID).Scan(&booking, &payment, &payout)
	if err != nil {
		return s, fmt.Errorf("failed to read state: %w", err)
	}
	return State{
		Booking: market.BookingStatus(booking),
		Payment: market.PaymentStatus(payment),
		Payout:  market.PayoutStatus(payout),
	}, nil
}

// checkSettlement verifies fee and payout add up to the captured amount.
func checkSettlement(ctx context.Context, db storage.DB, res *EscrowResult) error {
	var amount, fee, payout int64
	err := db.QueryRowContext(ctx, `
		SELECT p.amount, p.platform_fee, o.amount
		FROM payments p
		JOIN payouts o ON o.payment_id = p.id
		WHERE p.id = $1`, res.PaymentID).Scan(&amount, &fee, &payout)
	if err != nil {
		return fmt.Errorf("failed to read settlement: %w", err)
	}
	if fee+payout != amount || fee != res.Fee {
		return fmt.Errorf("%w: amount %d, fee %d, payout %d", ErrStateMismatch, amount, fee, payout)
	}
	return nil
}

func setBooking(ctx context.Context, db storage.DB, r *escrowRun, status market.BookingStatus) error {
	return execOne(ctx, db, `UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`, r.res.BookingID, status)
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, db storage.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: %d", ErrUnexpectedRows, n)
	}
	return nil
}
