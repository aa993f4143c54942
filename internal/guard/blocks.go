package guard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// Runner executes opsctl with args and env and returns its combined output
// and exit code. A non-nil error means the process could not be started.
type Runner func(ctx context.Context, env []string, args ...string) (output string, exitCode int, err error)

// ExecRunner runs the binary at path as a child process.
func ExecRunner(path string) Runner {
	return func(ctx context.Context, env []string, args ...string) (string, int, error) {
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Env = env

		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out.String(), exitErr.ExitCode(), nil
		}
		if err != nil {
			return out.String(), -1, err
		}
		return out.String(), 0, nil
	}
}

// Probe is one guarded invocation expected to be refused.
type Probe struct {
	Name string
	Args []string
}

// Probes covers every command that writes to the database.
var Probes = []Probe{
	{Name: "fix categories", Args: []string{"fix", "categories", "--apply"}},
	{Name: "fix services", Args: []string{"fix", "services", "--apply"}},
	{Name: "fix currency", Args: []string{"fix", "currency", "--apply"}},
	{Name: "fix enums", Args: []string{"fix", "enums", "--apply"}},
	{Name: "simulate escrow --keep", Args: []string{"simulate", "escrow", "--keep"}},
	{Name: "migrate up", Args: []string{"migrate", "up"}},
	{Name: "migrate down", Args: []string{"migrate", "down"}},
	{Name: "allow flag without confirmation", Args: []string{"fix", "categories", "--apply", "--allow-production"}},
}

// BlockResult is the outcome of one probe.
type BlockResult struct {
	Probe    Probe
	ExitCode int
	Blocked  bool
	Output   string
}

// ProductionEnv returns base with a production target forced on. The
// database host is unresolvable so a probe that slips through the guard
// still cannot write anywhere.
func ProductionEnv(base []string) []string {
	overrides := map[string]string{
		"APP_ENV":                "production",
		"NODE_ENV":               "production",
		"DATABASE_URL":           "postgres://ops@db.blocks-selftest.invalid:5432/marketplace",
		"OPS_CONFIRM_PRODUCTION": "-",
		"SENTRY_DSN":             "",
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; !ok {
			env = append(env, kv)
		}
	}
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	return env
}

// Blocks runs every probe against a production environment. A probe passes
// when the child exits non-zero and says it was blocked.
func Blocks(ctx context.Context, run Runner, probes []Probe) ([]BlockResult, error) {
	env := ProductionEnv(os.Environ())

	results := make([]BlockResult, 0, len(probes))
	for _, p := range probes {
		out, code, err := run(ctx, env, p.Args...)
		if err != nil {
			return results, err
		}
		results = append(results, BlockResult{
			Probe:    p,
			ExitCode: code,
			Blocked:  code != 0 && strings.Contains(strings.ToLower(out), "blocked"),
			Output:   strings.TrimSpace(out),
		})
	}
	return results, nil
}
