package envcheck

import (
	"fmt"
	"strings"

	"github.com/Jeffreasy/MarketplaceOps/internal/config"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
)

// Keys whose values must never be shared between environments.
var isolatedSecrets = []string{
	"PAYSTACK_SECRET_KEY",
	"SUPABASE_SERVICE_ROLE_KEY",
	"NEXTAUTH_SECRET",
}

var dsnKeys = []string{"DATABASE_URL", "DIRECT_URL"}

// hostKeys hold URLs whose hosts identify production resources.
var hostKeys = []string{
	"DATABASE_URL",
	"DIRECT_URL",
	"NEXT_PUBLIC_SUPABASE_URL",
	"NEXTAUTH_URL",
}

// Isolation reports every way the development env file could reach
// production: shared databases, shared credentials, a shared Supabase
// project and any production host mentioned in a development value.
func Isolation(dev, prod Env, productionHosts []string) []Violation {
	var out []Violation

	for _, key := range dsnKeys {
		devID := config.ParseDSN(dev.Get(key)).Identity()
		if devID != "" && devID == config.ParseDSN(prod.Get(key)).Identity() {
			out = append(out, Violation{Key: key, Rule: "shared-database", Level: report.LevelFail,
				Message: fmt.Sprintf("development and production both use %s", devID)})
		}
	}

	for _, key := range isolatedSecrets {
		if v := dev.Get(key); v != "" && v == prod.Get(key) {
			out = append(out, Violation{Key: key, Rule: "shared-secret", Level: report.LevelFail,
				Message: fmt.Sprintf("development reuses the production value %s", report.Mask(v))})
		}
	}

	if strings.HasPrefix(dev.Get("PAYSTACK_SECRET_KEY"), "sk_live_") {
		out = append(out, Violation{Key: "PAYSTACK_SECRET_KEY", Rule: "live-key", Level: report.LevelFail,
			Message: "development holds a live Paystack key"})
	}

	if v := dev.Get("NEXT_PUBLIC_SUPABASE_URL"); v != "" && v == prod.Get("NEXT_PUBLIC_SUPABASE_URL") {
		out = append(out, Violation{Key: "NEXT_PUBLIC_SUPABASE_URL", Rule: "shared-project", Level: report.LevelFail,
			Message: "development and production use the same Supabase project"})
	}

	hosts := productionHostSet(prod, productionHosts)
	for _, key := range dev.keys() {
		value := strings.ToLower(dev.Get(key))
		for _, host := range hosts {
			if strings.Contains(value, host) {
				out = append(out, Violation{Key: key, Rule: "production-host", Level: report.LevelFail,
					Message: fmt.Sprintf("references production host %s", host)})
				break
			}
		}
	}

	return out
}

// productionHostSet merges configured hosts with the public hosts found in
// the production env file. Shared pooler hosts are left out: every project of
// a region connects through them.
func productionHostSet(prod Env, configured []string) []string {
	seen := make(map[string]bool)
	var hosts []string
	add := func(h string) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] || IsLocalHost(h) || config.IsSharedHost(h) {
			return
		}
		seen[h] = true
		hosts = append(hosts, h)
	}

	for _, h := range configured {
		add(h)
	}
	for _, key := range hostKeys {
		add(urlHost(prod.Get(key)))
	}
	// A pooler DSN names its project only in the user.
	for _, key := range dsnKeys {
		if ref := config.ParseDSN(prod.Get(key)).Project; ref != "" {
			add(ref + ".supabase.co")
		}
	}
	return hosts
}
