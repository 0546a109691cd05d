package main

import (
	"fmt"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/safety"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect pimsync configuration. Endpoint settings are read from the
settings section of the config file; environment variables with the same
names take precedence.`,
		Example: `  pimsync config show
  pimsync config validate --config /etc/pimsync/pimsync.yaml`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration with secrets redacted",
			RunE:  configShowRun,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Resolve the endpoint settings and report problems",
			RunE:  configValidateRun,
		},
	)

	return cmd
}

// redactedConfig returns a copy of cfg with environment overrides applied and
// secrets masked.
func redactedConfig(cfg *config.Config) config.Config {
	out := *cfg
	out.Settings = cfg.EffectiveSettings()
	if v, ok := out.Settings[config.KeyAPIKey]; ok {
		out.Settings[config.KeyAPIKey] = safety.Redact(v)
	}
	out.Source.S3.SecretKey = safety.Redact(cfg.Source.S3.SecretKey)
	return out
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	data, err := yaml.Marshal(redactedConfig(globalCfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println(string(data))
	return nil
}

func configValidateRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	endpoint, err := config.ResolveEndpoint(globalCfg.EffectiveSettings())
	if err != nil {
		return err
	}

	fmt.Println("Endpoint configuration is valid")
	fmt.Printf("  Base URL: %s\n", endpoint.BaseURL)
	fmt.Printf("  API key: %s\n", safety.Redact(endpoint.APIKey))
	fmt.Printf("  Timeout: %s\n", endpoint.Timeout())
	fmt.Printf("  Enabled: %t\n", endpoint.Enabled)
	fmt.Printf("  Batch size: %d\n", globalCfg.Import.BatchSize)
	fmt.Printf("  Strict: %t\n", globalCfg.Import.Strict)
	return nil
}
