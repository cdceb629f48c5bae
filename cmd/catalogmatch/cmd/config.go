package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/catalogmatch/configs"
	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/output"
)

const redacted = "********"

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage catalogmatch configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/catalogmatch/config.yaml)
  3. Project config (.catalogmatch.yaml)
  4. .env in the project directory
  5. Environment variables (CATALOGMATCH_*, GROQ_API_KEY, OPENAI_API_KEY)`,
		Example: `  # Create user config from template
  catalogmatch config init

  # Create .catalogmatch.yaml in the project directory
  catalogmatch config init --project

  # Show effective configuration
  catalogmatch config show`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd(g))

	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create a commented configuration file from the built-in template.

By default the user config is written to ~/.config/catalogmatch/config.yaml
(or $XDG_CONFIG_HOME/catalogmatch/config.yaml). With --project the file is
written as .catalogmatch.yaml in the --config directory.

With --force an existing file is backed up before being replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			if project {
				path = filepath.Join(g.configDir, ".catalogmatch.yaml")
			}
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Back up and overwrite an existing file")
	cmd.Flags().BoolVar(&project, "project", false, "Write .catalogmatch.yaml in the project directory")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to back it up and write a fresh template")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Status("📋", "Run 'catalogmatch config show' to verify")
	return nil
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources. Secrets are
redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			switch source {
			case "merged":
				loaded, err := g.loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			case "defaults":
				cfg = config.NewConfig()
			default:
				return fmt.Errorf("invalid source %q: must be merged or defaults", source)
			}

			redactSecrets(cfg)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", source)
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged or defaults")

	return cmd
}

// redactSecrets masks credentials that are set.
func redactSecrets(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.Embeddings.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Cache.RedisPassword,
		&cfg.Server.APIKey,
	} {
		if *s != "" {
			*s = redacted
		}
	}
}

func newConfigPathCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", filepath.Join(g.configDir, ".catalogmatch.yaml"))
			return nil
		},
	}
}
