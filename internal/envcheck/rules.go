package envcheck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
)

type rule struct {
	key     string
	name    string // Rule name reported when check fails
	pattern *regexp.Regexp
	require map[Profile]report.Level // Level when unset; absent profile means optional
	secret  bool
	check   func(value string, env Env, p Profile) string
}

var (
	postgresURL   = regexp.MustCompile(`^postgres(ql)?://\S+$`)
	paystackKey   = regexp.MustCompile(`^sk_(test|live)_\w+$`)
	paystackPub   = regexp.MustCompile(`^pk_(test|live)_\w+$`)
	supabaseURL   = regexp.MustCompile(`^https://[a-z0-9]+\.supabase\.co/?$`)
	httpURL       = regexp.MustCompile(`^https?://\S+$`)
	nodeEnvValues = regexp.MustCompile(`^(development|production|test)$`)
)

var (
	always     = map[Profile]report.Level{Development: report.LevelFail, Production: report.LevelFail}
	inProdOnly = map[Profile]report.Level{Production: report.LevelFail}
)

const minAuthSecretLength = 32

var rules = []rule{
	{
		key:     "NODE_ENV",
		name:    "profile",
		pattern: nodeEnvValues,
		require: always,
		check: func(value string, _ Env, p Profile) string {
			if value != string(p) {
				return fmt.Sprintf("is %q, expected %q", value, p)
			}
			return ""
		},
	},
	{
		key:     "DATABASE_URL",
		name:    "host",
		pattern: postgresURL,
		require: always,
		secret:  true,
		check:   productionDatabase,
	},
	{
		key:     "DIRECT_URL",
		name:    "host",
		pattern: postgresURL,
		require: map[Profile]report.Level{Production: report.LevelWarn},
		secret:  true,
		check:   productionDatabase,
	},
	{
		key:     "PAYSTACK_SECRET_KEY",
		name:    "mode",
		pattern: paystackKey,
		require: always,
		secret:  true,
		check: func(value string, _ Env, p Profile) string {
			want := "test"
			if p == Production {
				want = "live"
			}
			if mode := paystackMode(value); mode != want {
				return fmt.Sprintf("%s key in %s", mode, p)
			}
			return ""
		},
	},
	{
		key:     "NEXT_PUBLIC_PAYSTACK_PUBLIC_KEY",
		name:    "mode",
		pattern: paystackPub,
		require: always,
		check: func(value string, env Env, _ Profile) string {
			secret := env.Get("PAYSTACK_SECRET_KEY")
			if !paystackKey.MatchString(secret) {
				return ""
			}
			if pub, sec := paystackMode(value), paystackMode(secret); pub != sec {
				return fmt.Sprintf("public key is %s but secret key is %s", pub, sec)
			}
			return ""
		},
	},
	{
		key:     "NEXT_PUBLIC_SUPABASE_URL",
		pattern: supabaseURL,
		require: always,
	},
	{
		key:     "NEXT_PUBLIC_SUPABASE_ANON_KEY",
		name:    "role",
		require: always,
		check: func(value string, _ Env, _ Profile) string {
			return expectRole(value, "anon")
		},
	},
	{
		key:     "SUPABASE_SERVICE_ROLE_KEY",
		name:    "role",
		require: inProdOnly,
		secret:  true,
		check: func(value string, env Env, _ Profile) string {
			if value == env.Get("NEXT_PUBLIC_SUPABASE_ANON_KEY") {
				return "service role key equals the anon key"
			}
			return expectRole(value, "service_role")
		},
	},
	{
		key:     "NEXTAUTH_SECRET",
		name:    "strength",
		require: always,
		secret:  true,
		check: func(value string, _ Env, _ Profile) string {
			if len(value) < minAuthSecretLength {
				return fmt.Sprintf("%d characters, need at least %d", len(value), minAuthSecretLength)
			}
			return ""
		},
	},
	{
		key:     "NEXTAUTH_URL",
		name:    "public-url",
		pattern: httpURL,
		require: inProdOnly,
		check: func(value string, _ Env, p Profile) string {
			if p != Production {
				return ""
			}
			if err := ValidatePublicURL(value); err != nil {
				return err.Error()
			}
			return ""
		},
	},
}

func paystackMode(key string) string {
	if strings.Contains(key, "_live_") {
		return "live"
	}
	return "test"
}

func productionDatabase(value string, _ Env, p Profile) string {
	if p != Production {
		return ""
	}
	host := urlHost(value)
	if host == "" {
		return "cannot parse database host"
	}
	if IsLocalHost(host) {
		return fmt.Sprintf("production database points at local host %s", host)
	}
	return ""
}
