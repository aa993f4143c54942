// Package envcheck validates application env files against the rules of a
// deployment profile. Files are parsed, never exported into the process.
package envcheck

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
)

// Profile selects which rules apply to an env file.
type Profile string

const (
	Development Profile = "development"
	Production  Profile = "production"
)

var ErrUnknownProfile = errors.New("unknown profile")

func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return Development, nil
	case "production", "prod":
		return Production, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
}

// Env is the parsed content of an env file.
type Env map[string]string

// Load reads an env file without touching the process environment.
func Load(path string) (Env, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Env(values), nil
}

// Parse reads env file content from r.
func Parse(r io.Reader) (Env, error) {
	values, err := godotenv.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}
	return Env(values), nil
}

// Get returns the trimmed value of key.
func (e Env) Get(key string) string {
	return strings.TrimSpace(e[key])
}

func (e Env) keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Violation is one broken rule. Secret values in Message are masked.
type Violation struct {
	Key     string
	Rule    string
	Level   report.Level
	Message string
}

// Failed reports whether any violation is a failure.
func Failed(violations []Violation) bool {
	for _, v := range violations {
		if v.Level == report.LevelFail {
			return true
		}
	}
	return false
}

// Validate applies the profile rules, the placeholder blocklist and the
// browser exposure rules to env.
func Validate(env Env, p Profile) []Violation {
	var out []Violation
	for _, r := range rules {
		value := env.Get(r.key)
		if value == "" {
			if level, required := r.require[p]; required {
				out = append(out, Violation{Key: r.key, Rule: "required", Level: level, Message: "not set"})
			}
			continue
		}

		shown := value
		if r.secret {
			shown = report.Mask(value)
		}
		if r.pattern != nil && !r.pattern.MatchString(value) {
			out = append(out, Violation{
				Key:     r.key,
				Rule:    "format",
				Level:   report.LevelFail,
				Message: fmt.Sprintf("%s does not match %s", shown, r.pattern),
			})
			continue
		}
		if r.check == nil {
			continue
		}
		if msg := r.check(value, env, p); msg != "" {
			out = append(out, Violation{Key: r.key, Rule: r.name, Level: report.LevelFail, Message: msg})
		}
	}

	out = append(out, placeholders(env)...)
	return append(out, exposure(env)...)
}

var placeholderValues = map[string]bool{
	"changeme":         true,
	"change-me":        true,
	"change_me":        true,
	"changethis":       true,
	"replace-me":       true,
	"replaceme":        true,
	"placeholder":      true,
	"secret":           true,
	"password":         true,
	"your-secret-here": true,
	"your_secret_here": true,
	"xxx":              true,
	"todo":             true,
}

// isPlaceholder matches the blocklist plus "<...>" and "your-..." templates.
func isPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if placeholderValues[v] {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	return strings.HasPrefix(v, "your-") || strings.HasPrefix(v, "your_")
}

func placeholders(env Env) []Violation {
	var out []Violation
	for _, key := range env.keys() {
		if isPlaceholder(env[key]) {
			out = append(out, Violation{
				Key:     key,
				Rule:    "placeholder",
				Level:   report.LevelFail,
				Message: fmt.Sprintf("value %q is a template placeholder", env.Get(key)),
			})
		}
	}
	return out
}

// exposure flags NEXT_PUBLIC_* values; Next.js inlines them into the client bundle.
func exposure(env Env) []Violation {
	var out []Violation
	for _, key := range env.keys() {
		if !strings.HasPrefix(key, "NEXT_PUBLIC_") {
			continue
		}
		value := env.Get(key)
		switch {
		case strings.HasPrefix(value, "sk_"):
			out = append(out, Violation{Key: key, Rule: "exposure", Level: report.LevelFail,
				Message: fmt.Sprintf("secret key %s is shipped to the browser", report.Mask(value))})
		case jwtRoleIs(value, "service_role"):
			out = append(out, Violation{Key: key, Rule: "exposure", Level: report.LevelFail,
				Message: "Supabase service_role key is shipped to the browser"})
		case strings.Contains(key, "SECRET") || strings.Contains(key, "SERVICE_ROLE"):
			out = append(out, Violation{Key: key, Rule: "exposure", Level: report.LevelFail,
				Message: "secret-looking variable is public"})
		}
	}
	return out
}
