package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jeffreasy/MarketplaceOps/internal/envcheck"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Environment and security gates",
}

var (
	envFile    string
	envProfile string
	devFile    string
	prodFile   string
)

var verifyEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Validate an env file against a deployment profile",
	Long: `Parses the env file without exporting it and validates every known key:
formats, Paystack key modes, Supabase key roles, secret strength, placeholders
and secrets exposed through NEXT_PUBLIC_ variables.`,
	RunE: runVerifyEnv,
}

func runVerifyEnv(cmd *cobra.Command, args []string) error {
	profile, err := envcheck.ParseProfile(envProfile)
	if err != nil {
		return err
	}
	env, err := envcheck.Load(envFile)
	if err != nil {
		return err
	}

	p := report.New(stdout)
	p.Section(fmt.Sprintf("%s (%s)", envFile, profile))
	violations := envcheck.Validate(env, profile)
	printViolations(p, violations, "all variables valid")
	p.Summary()

	if envcheck.Failed(violations) {
		return failed{what: "env", count: p.Count(report.LevelFail)}
	}
	return nil
}

var verifyIsolationCmd = &cobra.Command{
	Use:   "isolation",
	Short: "Check that development and production share no database, keys or hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := envcheck.Load(devFile)
		if err != nil {
			return err
		}
		prod, err := envcheck.Load(prodFile)
		if err != nil {
			return err
		}

		p := report.New(stdout)
		p.Section(fmt.Sprintf("%s vs %s", devFile, prodFile))
		violations := envcheck.Isolation(dev, prod, cfg.ProductionHosts)
		printViolations(p, violations, "environments are isolated")
		p.Summary()

		if envcheck.Failed(violations) {
			return failed{what: "isolation", count: p.Count(report.LevelFail)}
		}
		return nil
	},
}

func printViolations(p *report.Printer, violations []envcheck.Violation, clean string) {
	if len(violations) == 0 {
		p.Line(report.LevelOK, "%s", clean)
		return
	}
	for _, v := range violations {
		p.Line(v.Level, "%s [%s]: %s", v.Key, v.Rule, v.Message)
	}
}

var verifyBlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Prove every writing command is refused against production",
	Long: `Runs this executable once per guarded command with a production
environment pointing at an unresolvable database. Every run must exit non-zero
and report that it was blocked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate opsctl executable: %w", err)
		}

		results, err := guard.Blocks(cmd.Context(), guard.ExecRunner(self), guard.Probes)
		if err != nil {
			return err
		}

		p := report.New(stdout)
		p.Section("Production security blocks")
		for _, r := range results {
			if r.Blocked {
				p.Line(report.LevelOK, "%s: blocked (exit %d)", r.Probe.Name, r.ExitCode)
				continue
			}
			p.Line(report.LevelFail, "%s: NOT blocked (exit %d)", r.Probe.Name, r.ExitCode)
			if r.Output != "" {
				p.Info("%s", r.Output)
			}
		}
		p.Summary()

		if p.Failed() {
			return failed{what: "blocks", count: p.Count(report.LevelFail)}
		}
		return nil
	},
}

var verifyTOTPCmd = &cobra.Command{
	Use:   "totp-enroll",
	Short: "Generate an OPS_TOTP_SECRET for the current operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := guard.Enroll(cfg.Operator)
		if err != nil {
			return err
		}
		p := report.New(stdout)
		p.Section("TOTP enrollment for " + cfg.Operator)
		p.Info("OPS_TOTP_SECRET=%s", key.Secret())
		p.Info("Authenticator URL: %s", key.URL())
		return nil
	},
}

func init() {
	verifyEnvCmd.Flags().StringVar(&envFile, "file", ".env.local", "Env file to validate")
	verifyEnvCmd.Flags().StringVar(&envProfile, "profile", "development", "Profile: development or production")

	verifyIsolationCmd.Flags().StringVar(&devFile, "dev", ".env.local", "Development env file")
	verifyIsolationCmd.Flags().StringVar(&prodFile, "prod", ".env.production", "Production env file")

	verifyCmd.AddCommand(verifyEnvCmd, verifyIsolationCmd, verifyBlocksCmd, verifyTOTPCmd)
}
