package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jeffreasy/MarketplaceOps/internal/paystack"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Local Paystack webhook endpoint",
}

var listenAddr string

var webhookListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive and verify Paystack webhooks until interrupted",
	Long: `Serves POST /webhooks/paystack and POST /api/webhooks/paystack. Each request
must carry a valid x-paystack-signature for PAYSTACK_SECRET_KEY (401 otherwise)
and match the webhook schema (400 otherwise). Accepted events are printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.PaystackSecretKey == "" {
			return paystack.ErrMissingSecret
		}

		p := report.New(stdout)
		var mu sync.Mutex
		receiver := paystack.NewReceiver(cfg.PaystackSecretKey, log, func(ctx context.Context, e paystack.Event) error {
			mu.Lock()
			defer mu.Unlock()
			p.Line(report.LevelOK, "%s %s", e.Event, e.Reference())
			return nil
		})

		srv := &http.Server{
			Addr:         listenAddr,
			Handler:      receiver.Routes(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		return serve(cmd.Context(), srv)
	},
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errs := make(chan error, 1)
	go func() {
		log.Info("webhook_listener_started", "addr", srv.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutdown_signal_received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("webhook_listener_stopped")
	return nil
}

func init() {
	webhookListenCmd.Flags().StringVar(&listenAddr, "addr", ":8787", "Listen address")
	webhookCmd.AddCommand(webhookListenCmd)
}
