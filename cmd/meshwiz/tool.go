package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/meshwiz/internal/mcpserver"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/spf13/cobra"
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Edit and inspect the current wizard",
	Long: `Edit and inspect the wizard of a session from the command line.

Every tab command takes a JSON payload as its argument, or reads it from stdin
when the argument is missing or "-". Omitted fields keep their current value
except in the weights, rules and hosts tabs, which replace the whole list.
Invalid values are stored and block submission until they are fixed.

Output is JSON for parsing by scripts and agents.`,
}

func init() {
	rootCmd.AddCommand(toolCmd)

	for _, tab := range wizard.AllTabs() {
		toolCmd.AddCommand(newTabCmd(tab))
	}
	toolCmd.AddCommand(stateCmd)
	toolCmd.AddCommand(notificationsCmd)
	toolCmd.AddCommand(closeCmd)
	toolCmd.AddCommand(sessionsCmd)
}

var tabExamples = map[string]string{
	wizard.TabWeights:        `{"workloads":[{"name":"reviews-v1","weight":80},{"name":"reviews-v2","weight":20}]}`,
	wizard.TabRules:          `{"rules":[{"matches":["headers end-user exact jason"],"routes":[{"name":"reviews-v2","weight":100}]}]}`,
	wizard.TabFaultInjection: `{"delayed":true,"delay":{"percentage":50,"fixedDelay":"5s"}}`,
	wizard.TabTimeouts:       `{"isTimeout":true,"timeout":"2s"}`,
	wizard.TabHosts:          `{"hosts":["reviews.example.com"]}`,
	wizard.TabGateway:        `{"gateway":{"addGateway":true,"newGateway":true,"port":80},"hosts":["reviews.example.com"]}`,
	wizard.TabTrafficPolicy:  `{"tlsModified":true,"tls":{"mode":"ISTIO_MUTUAL"}}`,
	wizard.TabCircuitBreaker: `{"addConnectionPool":true,"connectionPool":{"maxConnections":100}}`,
}

func newTabCmd(tab string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     tab + " [json]",
		Short:   fmt.Sprintf("Set the %s tab", strings.ReplaceAll(tab, "-", " ")),
		Example: fmt.Sprintf("  meshwiz tool %s '%s'", tab, tabExamples[tab]),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			name, err := sessionName()
			if err != nil {
				return err
			}

			store, cleanup, err := connectStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			msgs, next, err := mcpserver.UpdateTab(cmd.Context(), store, name, tab, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"tab":      tab,
				"valid":    len(msgs) == 0,
				"messages": msgs,
				"ready":    wizard.IsValid(next),
				"blocking": next.Valid.Invalid(),
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the payload from a file")
	return cmd
}

// readPayload returns the JSON argument, the payload file, or stdin for a
// missing or "-" argument.
func readPayload(stdin io.Reader, file string, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("a JSON payload is required")
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the wizard state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := sessionName()
		if err != nil {
			return err
		}
		store, cleanup, err := connectStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := store.LoadState(cmd.Context(), name)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"session":  name,
			"events":   st.Events,
			"ready":    st.Wizard.Open && wizard.IsValid(st.Wizard),
			"blocking": st.Wizard.Valid.Invalid(),
			"wizard":   st.Wizard,
		})
	},
}

// notifications command
var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List the notifications of a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := sessionName()
		if err != nil {
			return err
		}
		store, cleanup, err := connectStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := store.LoadState(cmd.Context(), name)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st.Notifications)
	},
}

// close command
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the wizard without writing anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := sessionName()
		if err != nil {
			return err
		}
		store, cleanup, err := connectStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := store.Close(cmd.Context(), name, false); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{"session": name, "status": "closed"})
	},
}

// sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions with stored events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := connectStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		names, err := store.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if names == nil {
			names = []string{}
		}
		return printJSON(cmd.OutOrStdout(), names)
	},
}
