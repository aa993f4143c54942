package envcheck

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ValidatePublicURL checks a URL served to real users.
// Rejects wildcards, plain HTTP and local or private hosts.
func ValidatePublicURL(raw string) error {
	// ❌ REJECT: wildcard or malformed
	if raw == "*" || raw == "" || strings.Contains(raw, " ") {
		return errors.New("invalid URL format")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New("invalid URL format")
	}

	// ❌ REJECT: HTTP outside development
	if u.Scheme != "https" {
		return errors.New("only HTTPS URLs allowed in production")
	}

	if IsLocalHost(u.Hostname()) {
		return errors.New("URL points at a local or private host")
	}
	return nil
}

var localHosts = map[string]bool{
	"localhost":            true,
	"0.0.0.0":              true,
	"127.0.0.1":            true,
	"::1":                  true,
	"ip6-localhost":        true,
	"ip6-loopback":         true,
	"host.docker.internal": true,
}

// privateBlocks covers ranges the net.IP helpers do not.
var privateBlocks = mustCIDRs(
	"100.64.0.0/10", // CG NAT
	"169.254.0.0/16",
	"0.0.0.0/8",
)

// IsLocalHost reports whether host is a loopback name or a non-routable IP.
// Names are not resolved.
func IsLocalHost(host string) bool {
	host = strings.ToLower(strings.Trim(strings.TrimSpace(host), "[]"))
	if localHosts[host] || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func mustCIDRs(blocks ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, cidr, err := net.ParseCIDR(b)
		if err != nil {
			panic(err)
		}
		out = append(out, cidr)
	}
	return out
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
