package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/meshwiz/internal/mcpserver"
	"github.com/mark3labs/meshwiz/internal/notify"
	"github.com/mark3labs/meshwiz/internal/submit"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	port     int
	host     string
	noSubmit bool
	templateFlags
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the current wizard as MCP tools",
	Long: `Serve the wizard of a session over the Model Context Protocol (streamable HTTP).

Agents can read the state, edit every tab, preview and submit through the
tools. The embedded NATS server started here is shared with other meshwiz
commands run against the same data directory while serve is running.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "Port to listen on (default: random)")
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "127.0.0.1", "Interface to listen on")
	serveCmd.Flags().BoolVar(&serveFlags.noSubmit, "no-submit", false, "Disable the wizard-submit tool")
	serveCmd.Flags().StringVar(&serveFlags.successTemplate, "success-template", "", "File with the success notification template")
	serveCmd.Flags().StringVar(&serveFlags.failureTemplate, "failure-template", "", "File with the failure notification template")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, err := sessionName()
	if err != nil {
		return err
	}
	opts, err := synthOptions()
	if err != nil {
		return err
	}

	store, cleanup, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var sub *submit.Submitter
	if !serveFlags.noSubmit {
		sub, err = newSubmitter(store, name, serveFlags.templateFlags, notify.NewWriter(os.Stderr))
		if err != nil {
			return err
		}
	}

	srv := mcpserver.New(store, name, sub, opts, mcpserver.WithHost(serveFlags.host))
	if _, err := srv.Start(ctx, serveFlags.port); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving session %s at %s\n", name, srv.URL())
	fmt.Println("Press Ctrl+C to stop.")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		fmt.Println("\nShutting down gracefully...")
	case <-ctx.Done():
	}
	return nil
}
