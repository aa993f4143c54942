// Package guard gates mutating commands that target production.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jeffreasy/MarketplaceOps/internal/config"
)

var ErrProductionBlocked = errors.New("blocked: production mutation not confirmed")

// Target is the database a command would write to.
type Target struct {
	Host       string
	Database   string
	Production bool
	Reason     string // Why the target counts as production
}

// Resolve classifies the configured database. The environment name and the
// configured production hosts are both trusted; either one is enough.
func Resolve(cfg config.Config) Target {
	dsn := config.ParseDSN(cfg.DatabaseURL)
	t := Target{Host: dsn.Host, Database: dsn.Database}
	if cfg.IsProduction() {
		t.Production = true
		t.Reason = "environment is " + cfg.AppEnv
		return t
	}
	if host, ok := dsn.MatchHost(cfg.ProductionHosts); ok {
		t.Production = true
		t.Reason = "host " + host + " is a production host"
	}
	return t
}

// Confirmation is what the operator supplied on the command line.
type Confirmation struct {
	AllowProduction bool
	OTP             string
}

type Guard struct {
	cfg    config.Config
	target Target
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg config.Config, logger *slog.Logger) *Guard {
	return &Guard{
		cfg:    cfg,
		target: Resolve(cfg),
		logger: logger,
		now:    time.Now,
	}
}

func (g *Guard) Target() Target { return g.target }

// Authorize returns nil when action may write to the target. Non-production
// targets are always allowed. Production needs the flag, the database name
// echoed in OPS_CONFIRM_PRODUCTION and a TOTP code when a secret is set.
func (g *Guard) Authorize(action string, c Confirmation) error {
	if !g.target.Production {
		return nil
	}

	if !c.AllowProduction {
		return fmt.Errorf("%w: %s targets production (%s); pass --allow-production", ErrProductionBlocked, action, g.target.Reason)
	}

	if g.target.Database == "" || g.cfg.ConfirmProduction != g.target.Database {
		return fmt.Errorf("%w: set OPS_CONFIRM_PRODUCTION to the target database name (%q)", ErrProductionBlocked, g.target.Database)
	}

	if g.cfg.TOTPSecret != "" {
		if c.OTP == "" {
			return fmt.Errorf("%w: --otp is required", ErrProductionBlocked)
		}
		if !validateCode(c.OTP, g.cfg.TOTPSecret, g.now()) {
			return fmt.Errorf("%w: invalid --otp code", ErrProductionBlocked)
		}
	}

	g.logger.Warn("production_mutation_authorized",
		"action", action,
		"host", g.target.Host,
		"database", g.target.Database,
		"operator", g.cfg.Operator,
	)
	return nil
}
