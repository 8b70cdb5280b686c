package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/termgate/termgate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a configuration file populated with defaults to the default
location ($XDG_CONFIG_HOME/termgate/config.yaml) or to --config.

The generated file has an empty JWT secret; set auth.jwt_secret (or the
JWT_SECRET environment variable) before starting the server.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set auth.jwt_secret in the file (or export JWT_SECRET)")
	fmt.Println("  2. Start the server with: termgate start")
	return nil
}
