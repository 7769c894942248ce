package main

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/theme"
	"github.com/spf13/cobra"
)

const (
	logoText1 = "█▀▄▀█ █▀▀ █▀ █ █ █ █ █ █ ▀█"
	logoText2 = "█ ▀ █ ██▄ ▄█ █▀█ ▀▄▀▄▀ █ █▄"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meshwiz",
	Short: "Service mesh traffic wizards for Istio",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadApp()
	},
}

// renderLogo creates the logo with gradient colors
func renderLogo() string {
	t := theme.Current()
	line1 := theme.ApplyGradient(logoText1, t.Primary, t.Secondary)
	line2 := theme.ApplyGradient(logoText2, t.Primary, t.Secondary)
	return strings.Join([]string{line1, line2}, "\n")
}

func init() {
	// Set Long description with logo
	rootCmd.Long = renderLogo() + `

meshwiz creates and updates the Istio configuration of a service through
guided wizards: traffic shifting, TCP traffic shifting, request routing,
fault injection and request timeouts.

A wizard is opened for one service, edited tab by tab (from the command line,
or by an agent through the MCP tool server), previewed as YAML and submitted
to the mesh console. Wizard sessions are event logs kept in an embedded NATS
JetStream server under the data directory, so every meshwiz process sees the
same state.`

	rootCmd.PersistentFlags().StringVarP(&globalFlags.name, "name", "n", "", "Session name (default: the last opened session)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.dataDir, "data-dir", "", "Data directory (default: from config or .meshwiz)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.apiURL, "api-url", "", "Mesh console URL (default: from config)")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
}
