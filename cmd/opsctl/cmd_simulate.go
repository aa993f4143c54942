package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Jeffreasy/MarketplaceOps/internal/audit"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/market"
	"github.com/Jeffreasy/MarketplaceOps/internal/paystack"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/simulate"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulated integration runs (webhooks, escrow lifecycle, pagination)",
}

var (
	simEvents    []string
	simAmount    int64
	simCurrency  string
	simURL       string
	simEmail     string
	simBookingID string
	simRPS       float64

	escrowAmount   int64
	escrowCurrency string
	escrowKeep     bool
	escrowGuard    guardFlags

	simTable    string
	simPageSize int
)

var simulateWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Send signed Paystack events to a webhook endpoint",
	Long: `Builds one payload per --event, validates it against the webhook schema,
signs it with PAYSTACK_SECRET_KEY and posts it. Several events are replayed in
order at most --rps per second.

Example:
  opsctl simulate webhook --event charge.success --event transfer.success --amount 2500000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simRPS <= 0 {
			return fmt.Errorf("--rps must be positive, got %g", simRPS)
		}

		url := simURL
		if url == "" {
			url = cfg.WebhookURL
		}

		bodies := make([][]byte, 0, len(simEvents))
		for _, name := range simEvents {
			typ, err := paystack.ParseEventType(name)
			if err != nil {
				return err
			}
			body, err := paystack.BuildEvent(typ, paystack.Params{
				Amount:    simAmount,
				Currency:  simCurrency,
				Email:     simEmail,
				BookingID: simBookingID,
			})
			if err != nil {
				return err
			}
			if err := paystack.ValidatePayload(body); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			bodies = append(bodies, body)
		}

		sender := paystack.NewSender(url, cfg.PaystackSecretKey, rate.Limit(simRPS), log)
		responses, err := sender.Replay(cmd.Context(), bodies)

		p := report.New(stdout)
		p.Section("Webhooks to " + url)
		for _, r := range responses {
			level := report.LevelOK
			if r.Status < 200 || r.Status >= 300 {
				level = report.LevelFail
			}
			p.Line(level, "%s: %d %s in %s", r.Event, r.Status, http.StatusText(r.Status), r.Duration.Round(time.Millisecond))
			if level == report.LevelFail && r.Body != "" {
				p.Info("%s", strings.TrimSpace(r.Body))
			}
		}
		if err != nil {
			return err
		}
		p.Summary()

		if p.Failed() {
			return failed{what: "webhook", count: p.Count(report.LevelFail)}
		}
		return nil
	},
}

var simulateEscrowCmd = &cobra.Command{
	Use:   "escrow",
	Short: "Walk a seeded booking through payment, escrow, release and payout",
	Long: `Seeds a client, a provider, a service and a booking inside one transaction
and drives the booking through the full escrow lifecycle, reading the state back
after every step. The transaction is rolled back unless --keep is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g := guard.New(cfg, log)
		if escrowKeep {
			if err := g.Authorize("simulate_escrow_keep", escrowGuard.confirmation()); err != nil {
				return err
			}
		}

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		currency := escrowCurrency
		if currency == "" {
			currency = cfg.DefaultCurrency
		}
		res, err := simulate.Escrow(ctx, db, simulate.EscrowOptions{
			Amount:   escrowAmount,
			Currency: currency,
			FeeBPS:   cfg.PlatformFeeBPS,
			Keep:     escrowKeep,
		}, log)
		if err != nil {
			return err
		}

		if res.Kept {
			target := g.Target()
			if err := newRecorder().Record(ctx, db, audit.Entry{
				Actor:  cfg.Operator,
				Action: audit.ActionSimulateKeep,
				Target: target.Host + "/" + target.Database,
				Details: map[string]any{
					"run_id":     res.RunID,
					"booking_id": res.BookingID,
					"payment_id": res.PaymentID,
					"payout_id":  res.PayoutID,
				},
			}); err != nil {
				return err
			}
		}

		printEscrow(report.New(stdout), res)
		return nil
	},
}

func printEscrow(p *report.Printer, res *simulate.EscrowResult) {
	p.Section("Escrow simulation " + res.RunID)
	rows := make([][]string, 0, len(res.Steps))
	for i, s := range res.Steps {
		event := string(s.Event)
		if event == "" {
			event = "-"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Name, event, s.State.String()})
	}
	p.Table([]string{"#", "Step", "Webhook", "State"}, rows)

	p.Line(report.LevelOK, "amount %s = fee %s + payout %s",
		market.FormatAmount(res.Currency, res.Amount),
		market.FormatAmount(res.Currency, res.Fee),
		market.FormatAmount(res.Currency, res.Payout))
	if res.Kept {
		p.Line(report.LevelWarn, "rows kept: booking %s", res.BookingID)
	} else {
		p.Line(report.LevelInfo, "rolled back, nothing was written")
	}
}

var simulatePaginationCmd = &cobra.Command{
	Use:   "pagination",
	Short: "Page through a table with offset and keyset pagination",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := simulate.Pagination(cmd.Context(), db, simTable, simPageSize)
		if err != nil {
			return err
		}

		p := report.New(stdout)
		p.Section(fmt.Sprintf("Pagination over %s (%d rows, page size %d)", res.Table, res.Total, res.PageSize))
		p.Table([]string{"Mode", "Pages", "Rows", "Duplicates", "Missing"}, [][]string{
			pageRow("offset", res.Offset),
			pageRow("keyset", res.Keyset),
		})

		problems := res.Problems()
		if len(problems) == 0 {
			p.Line(report.LevelOK, "both modes returned %d pages covering every row once", res.ExpectedPages)
			return nil
		}
		for _, msg := range problems {
			p.Line(report.LevelFail, "%s", msg)
		}
		return failed{what: "pagination", count: len(problems)}
	},
}

func pageRow(mode string, s simulate.PageStats) []string {
	return []string{mode, strconv.Itoa(s.Pages), strconv.Itoa(s.Rows), strconv.Itoa(s.Duplicates), strconv.Itoa(s.Missing)}
}

func init() {
	simulateWebhookCmd.Flags().StringSliceVar(&simEvents, "event", []string{string(paystack.ChargeSuccess)}, "Event type to send (repeatable)")
	simulateWebhookCmd.Flags().Int64Var(&simAmount, "amount", 500000, "Amount in kobo")
	simulateWebhookCmd.Flags().StringVar(&simCurrency, "currency", "NGN", "Currency code")
	simulateWebhookCmd.Flags().StringVar(&simURL, "url", "", "Webhook endpoint (default: OPS_WEBHOOK_URL)")
	simulateWebhookCmd.Flags().StringVar(&simEmail, "email", "", "Customer email (default: generated)")
	simulateWebhookCmd.Flags().StringVar(&simBookingID, "booking", "", "Booking id placed in metadata")
	simulateWebhookCmd.Flags().Float64Var(&simRPS, "rps", 2, "Maximum events per second")

	simulateEscrowCmd.Flags().Int64Var(&escrowAmount, "amount", 2500000, "Booking amount in kobo")
	simulateEscrowCmd.Flags().StringVar(&escrowCurrency, "currency", "", "Currency code (default: OPS_DEFAULT_CURRENCY)")
	simulateEscrowCmd.Flags().BoolVar(&escrowKeep, "keep", false, "Commit the simulated rows instead of rolling back")
	escrowGuard.register(simulateEscrowCmd)

	simulatePaginationCmd.Flags().StringVar(&simTable, "table", "services", "Table to page through: services or bookings")
	simulatePaginationCmd.Flags().IntVar(&simPageSize, "page-size", 10, "Rows per page")

	simulateCmd.AddCommand(simulateWebhookCmd, simulateEscrowCmd, simulatePaginationCmd)
}
