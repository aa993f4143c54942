package config

import (
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	poolerSuffix   = ".pooler.supabase.com"
	supabaseSuffix = ".supabase.co"
)

// DSN is the part of a connection string that identifies a database.
type DSN struct {
	Host     string
	Database string
	User     string
	Project  string // Supabase project ref, when the DSN points at Supabase
}

// ParseDSN reads URL and keyword/value connection strings. The zero DSN is
// returned for empty or unparseable input.
func ParseDSN(dsn string) DSN {
	if strings.TrimSpace(dsn) == "" {
		return DSN{}
	}

	var d DSN
	if cfg, err := pgconn.ParseConfig(dsn); err == nil {
		d = DSN{Host: cfg.Host, Database: cfg.Database, User: cfg.User}
	} else {
		// ParseConfig also loads TLS files; fall back to the bare URL.
		u, err := url.Parse(dsn)
		if err != nil || u.Host == "" {
			return DSN{}
		}
		d = DSN{Host: u.Hostname(), Database: strings.TrimPrefix(u.Path, "/"), User: u.User.Username()}
	}

	d.Host = strings.ToLower(d.Host)
	d.Project = SupabaseProject(d.Host, d.User)
	return d
}

// Identity names the database a DSN reaches. Supabase poolers serve every
// project of a region on one host and database name, so there the project
// ref identifies the database instead.
func (d DSN) Identity() string {
	if d.Host == "" {
		return ""
	}
	if d.Project != "" {
		return "supabase:" + d.Project + "/" + d.Database
	}
	return d.Host + "/" + d.Database
}

// MatchHost returns the entry of hosts that marks this DSN's database. Shared
// pooler hosts never match on their own; they match through the project ref
// of a Supabase host entry such as db.<ref>.supabase.co.
func (d DSN) MatchHost(hosts []string) (string, bool) {
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "":
		case d.Project != "" && SupabaseProject(h, "") == d.Project:
			return h, true
		case h == d.Host && !IsSharedHost(h):
			return h, true
		}
	}
	return "", false
}

// IsSharedHost reports hosts that serve many unrelated tenants.
func IsSharedHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), poolerSuffix)
}

// SupabaseProject extracts the project ref from a Supabase host, or from the
// "postgres.<ref>" user of a pooler connection.
func SupabaseProject(host, user string) string {
	host = strings.ToLower(host)
	switch {
	case strings.HasSuffix(host, poolerSuffix):
		_, ref, ok := strings.Cut(user, ".")
		if !ok {
			return ""
		}
		return strings.ToLower(ref)
	case strings.HasSuffix(host, supabaseSuffix):
		ref := strings.TrimPrefix(strings.TrimSuffix(host, supabaseSuffix), "db.")
		if ref == "" || strings.Contains(ref, ".") {
			return ""
		}
		return ref
	}
	return ""
}
