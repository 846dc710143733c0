package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var saveConfig bool

// configCmd shows the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file and environment
overrides are applied. API keys are redacted.

With --save the effective configuration is written to the config path.`,
	Args: cobra.NoArgs,
	RunE: showConfig,
}

func registerConfigFlags() {
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "Write the effective configuration to the config path")
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if saveConfig {
		path := resolveConfigPath()
		saved := *cfg
		saved.LLM.APIKey = ""
		if err := saved.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration to %s\n", path)
		return nil
	}

	shown := *cfg
	if shown.LLM.APIKey != "" {
		shown.LLM.APIKey = "<redacted>"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
