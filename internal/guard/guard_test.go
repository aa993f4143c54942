package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/MarketplaceOps/internal/config"
)

const prodDSN = "postgres://ops:pw@db.prodref.supabase.co:5432/marketplace"

func newGuard(cfg config.Config) *Guard {
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want bool
	}{
		{"development", config.Config{AppEnv: "development", DatabaseURL: "postgres://localhost/dev"}, false},
		{"production env", config.Config{AppEnv: "production", DatabaseURL: "postgres://localhost/dev"}, true},
		{"prod alias", config.Config{AppEnv: "prod"}, true},
		{
			name: "production host",
			cfg:  config.Config{AppEnv: "development", DatabaseURL: prodDSN, ProductionHosts: []string{"db.prodref.supabase.co"}},
			want: true,
		},
		{
			name: "production project through the pooler",
			cfg: config.Config{
				AppEnv:          "development",
				DatabaseURL:     "postgresql://postgres.prodref:pw@aws-0-eu-west-1.pooler.supabase.com:6543/postgres",
				ProductionHosts: []string{"db.prodref.supabase.co"},
			},
			want: true,
		},
		{
			name: "development project on a listed pooler host",
			cfg: config.Config{
				AppEnv:          "development",
				DatabaseURL:     "postgresql://postgres.devref:pw@aws-0-eu-west-1.pooler.supabase.com:6543/postgres",
				ProductionHosts: []string{"aws-0-eu-west-1.pooler.supabase.com", "db.prodref.supabase.co"},
			},
			want: false,
		},
		{
			name: "keyword dsn on a production host",
			cfg:  config.Config{AppEnv: "development", DatabaseURL: "host=db.prod.example.com dbname=marketplace user=ops", ProductionHosts: []string{"db.prod.example.com"}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Resolve(tt.cfg)
			assert.Equal(t, tt.want, target.Production)
			if tt.want {
				assert.NotEmpty(t, target.Reason)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	key, err := Enroll("ops@example.com")
	require.NoError(t, err)

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)

	prod := config.Config{AppEnv: "production", DatabaseURL: prodDSN, ConfirmProduction: "marketplace"}
	withTOTP := prod
	withTOTP.TOTPSecret = key.Secret()

	tests := []struct {
		name    string
		cfg     config.Config
		confirm Confirmation
		wantErr string
	}{
		{
			name: "development is never blocked",
			cfg:  config.Config{AppEnv: "development", DatabaseURL: "postgres://localhost:5432/dev"},
		},
		{
			name:    "production without flag",
			cfg:     prod,
			wantErr: "--allow-production",
		},
		{
			name:    "confirmation names another database",
			cfg:     config.Config{AppEnv: "production", DatabaseURL: prodDSN, ConfirmProduction: "postgres"},
			confirm: Confirmation{AllowProduction: true},
			wantErr: "OPS_CONFIRM_PRODUCTION",
		},
		{
			name:    "flag and confirmation",
			cfg:     prod,
			confirm: Confirmation{AllowProduction: true},
		},
		{
			name:    "totp required",
			cfg:     withTOTP,
			confirm: Confirmation{AllowProduction: true},
			wantErr: "--otp is required",
		},
		{
			name:    "wrong totp",
			cfg:     withTOTP,
			confirm: Confirmation{AllowProduction: true, OTP: "000000"},
			wantErr: "invalid --otp",
		},
		{
			name:    "valid totp",
			cfg:     withTOTP,
			confirm: Confirmation{AllowProduction: true, OTP: code},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGuard(tt.cfg)
			g.now = func() time.Time { return now }

			err := g.Authorize("fix categories", tt.confirm)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrProductionBlocked)
			assert.Contains(t, err.Error(), "blocked")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProductionEnv(t *testing.T) {
	env := ProductionEnv([]string{"PATH=/usr/bin", "APP_ENV=development", "OPS_CONFIRM_PRODUCTION=marketplace"})

	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "APP_ENV=production")
	assert.Contains(t, env, "OPS_CONFIRM_PRODUCTION=-")
	assert.NotContains(t, env, "APP_ENV=development")
	assert.NotContains(t, env, "OPS_CONFIRM_PRODUCTION=marketplace")
}

func TestBlocks(t *testing.T) {
	var seenEnv []string
	run := func(_ context.Context, env []string, args ...string) (string, int, error) {
		seenEnv = env
		if slices.Contains(args, "down") {
			return "migrated down 1 step", 0, nil
		}
		if slices.Contains(args, "enums") {
			return "error: connection refused", 1, nil
		}
		return "Error: blocked: production mutation not confirmed", 1, nil
	}

	results, err := Blocks(context.Background(), run, Probes)
	require.NoError(t, err)
	require.Len(t, results, len(Probes))
	assert.Contains(t, seenEnv, "APP_ENV=production")

	var unblocked []string
	for _, r := range results {
		if !r.Blocked {
			unblocked = append(unblocked, r.Probe.Name)
		}
	}
	assert.Equal(t, []string{"fix enums", "migrate down"}, unblocked)
}

func TestBlocks_RunnerError(t *testing.T) {
	run := func(context.Context, []string, ...string) (string, int, error) {
		return "", -1, errors.New("exec: not found")
	}

	_, err := Blocks(context.Background(), run, Probes)
	assert.Error(t, err)
}

func TestExecRunner(t *testing.T) {
	out, code, err := ExecRunner("/bin/sh")(context.Background(), nil, "-c", "echo blocked; exit 3")
	if err != nil {
		t.Skip("no /bin/sh available")
	}
	assert.Equal(t, 3, code)
	assert.Equal(t, "blocked", strings.TrimSpace(out))
}
