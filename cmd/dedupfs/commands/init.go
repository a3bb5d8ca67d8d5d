package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dedupfs/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample dedupfs configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dedupfs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dedupfs init

  # Initialize with custom path
  dedupfs init --config /etc/dedupfs/config.yaml

  # Force overwrite existing config
  dedupfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to choose metadata and blob backings")
	fmt.Println("  2. For the postgres backing, apply the schema with: dedupfs migrate")
	fmt.Printf("  3. Reclaim orphaned content with: dedupfs reclaim --config %s\n", configPath)

	return nil
}
