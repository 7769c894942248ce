package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/meshapi"
	"github.com/mark3labs/meshwiz/internal/session"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/spf13/cobra"
)

var openFlags struct {
	wizardType        string
	inputs            string
	export            string
	watch             bool
	gatewayNamespaces []string
}

var openCmd = &cobra.Command{
	Use:   "open <namespace> <service>",
	Short: "Open a wizard for a service",
	Long: `Open a wizard for a service and make it the current session.

The workloads, existing VirtualService, DestinationRule, PeerAuthentication and
gateways are read from the mesh console. The wizard opens in update mode when
the service already has a VirtualService or DestinationRule.

Use --inputs to open from a YAML or JSON file instead of the console, and
--export to save what was read for later offline use. With --watch the inputs
file is followed: the wizard is reopened when its workloads, type or service
change, and keeps its edits otherwise.

Wizard types: ` + typeList(),
	Args: func(cmd *cobra.Command, args []string) error {
		if openFlags.inputs != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runOpen,
}

func init() {
	openCmd.Flags().StringVarP(&openFlags.wizardType, "type", "t", string(wizard.TrafficShifting), "Wizard type")
	openCmd.Flags().StringVarP(&openFlags.inputs, "inputs", "i", "", "Read the wizard inputs from a file instead of the console")
	openCmd.Flags().StringVar(&openFlags.export, "export", "", "Write the wizard inputs to a file")
	openCmd.Flags().BoolVarP(&openFlags.watch, "watch", "w", false, "Keep following the --inputs file")
	openCmd.Flags().StringSliceVar(&openFlags.gatewayNamespaces, "gateway-namespace", []string{"istio-system"}, "Extra namespaces to list gateways from")
}

func typeList() string {
	var names []string
	for _, t := range wizard.Types {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if openFlags.watch && openFlags.inputs == "" {
		return fmt.Errorf("--watch needs --inputs")
	}

	in, err := openInputs(ctx, args)
	if err != nil {
		return err
	}
	if openFlags.export != "" {
		if err := meshapi.WriteInputsFile(openFlags.export, in); err != nil {
			return err
		}
	}

	store, cleanup, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	name := globalFlags.name
	if name == "" {
		name = session.Name(in.Namespace, in.ServiceName, in.Type)
	}
	st, err := store.Open(ctx, name, in)
	if err != nil {
		return fmt.Errorf("failed to open wizard: %w", err)
	}
	rememberSession(name)

	mode := "create"
	if in.Update {
		mode = "update"
	}
	fmt.Printf("Opened %s wizard for %s/%s (%s) in session %s\n",
		in.Type.Title(), in.Namespace, in.ServiceName, mode, name)
	fmt.Printf("Tabs: %s\n", strings.Join(wizard.Tabs(in.Type), ", "))
	if !wizard.IsValid(st) {
		fmt.Printf("Needs attention: %s\n", strings.Join(st.Valid.Invalid(), ", "))
	}

	if !openFlags.watch {
		return nil
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Printf("Watching %s, press Ctrl+C to stop.\n", openFlags.inputs)
	return meshapi.WatchInputsFile(ctx, openFlags.inputs, func(in wizard.Inputs) {
		st, err := store.Open(ctx, name, in)
		if err != nil {
			logger.Warn("Failed to reopen wizard: %v", err)
			return
		}
		fmt.Printf("Inputs changed: %d workloads, ready=%t\n", len(st.Inputs.Workloads), wizard.IsValid(st))
	})
}

func openInputs(ctx context.Context, args []string) (wizard.Inputs, error) {
	if openFlags.inputs != "" {
		return meshapi.LoadInputsFile(openFlags.inputs)
	}
	t, err := wizard.ParseType(openFlags.wizardType)
	if err != nil {
		return wizard.Inputs{}, err
	}
	in, err := apiClient().OpenInputs(ctx, meshapi.Lookup{
		Type:              t,
		Namespace:         args[0],
		Service:           args[1],
		GatewayNamespaces: openFlags.gatewayNamespaces,
		VersionLabel:      cfg.VersionLabel,
		GatewayPort:       uint32(cfg.GatewayPort),
	})
	if err != nil {
		return wizard.Inputs{}, fmt.Errorf("failed to read service %s/%s: %w", args[0], args[1], err)
	}
	return in, nil
}
