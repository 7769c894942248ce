package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/meshwiz/internal/config"
	"github.com/spf13/cobra"
)

var setupFlags struct {
	project bool
	force   bool
	apiURL  string
	token   string
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create meshwiz configuration file",
	Long: `Create a meshwiz configuration file with sensible defaults.

By default, creates a global config at ~/.config/meshwiz/meshwiz.yml.
Use --project to create a project-local config in the current directory.

Configuration is loaded from multiple sources with the following precedence:
  CLI flags > Environment variables (MESHWIZ_*) > Project config > Global config > Defaults`,
	// The config being replaced may not load.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite existing config file")
	setupCmd.Flags().StringVar(&setupFlags.apiURL, "url", "", "Mesh console URL")
	setupCmd.Flags().StringVar(&setupFlags.token, "token", "", "Mesh console bearer token")
}

func runSetup(cmd *cobra.Command, args []string) error {
	// Determine target path
	targetPath := config.GlobalPath()
	if setupFlags.project {
		targetPath = config.ProjectPath()
	}

	// Check if config already exists
	if !setupFlags.force && fileExists(targetPath) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", targetPath)
	}

	c := config.Default()
	if setupFlags.apiURL != "" {
		c.APIURL = setupFlags.apiURL
	}
	c.APIToken = setupFlags.token
	if err := c.Validate(); err != nil {
		return err
	}

	// Write config to target location
	var err error
	if setupFlags.project {
		err = config.WriteProject(c)
	} else {
		err = config.WriteGlobal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Print success message
	fmt.Printf("Config written to: %s\n\n", targetPath)
	fmt.Println("Run 'meshwiz open <namespace> <service>' to get started.")

	return nil
}

// fileExists checks if a file exists (helper for setup command).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
