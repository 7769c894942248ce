package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/meshwiz/internal/config"
	"github.com/mark3labs/meshwiz/internal/hooks"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/meshapi"
	"github.com/mark3labs/meshwiz/internal/nats"
	"github.com/mark3labs/meshwiz/internal/notify"
	"github.com/mark3labs/meshwiz/internal/session"
	"github.com/mark3labs/meshwiz/internal/state"
	"github.com/mark3labs/meshwiz/internal/submit"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/template"
)

var globalFlags struct {
	name    string
	dataDir string
	apiURL  string
}

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

func loadApp() error {
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if globalFlags.dataDir != "" {
		c.DataDir = globalFlags.dataDir
	}
	if globalFlags.apiURL != "" {
		c.APIURL = globalFlags.apiURL
	}
	if err := logger.Configure(c.LogLevel, c.LogFile); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	cfg = c
	return nil
}

func natsDir() string {
	return filepath.Join(cfg.DataDir, "nats")
}

// sessionName returns --name, or the session opened last.
func sessionName() (string, error) {
	if globalFlags.name != "" {
		return globalFlags.name, nil
	}
	if last := state.Load(cfg.DataDir).LastSession; last != "" {
		return last, nil
	}
	return "", fmt.Errorf("no session selected\n\nOpen a wizard with 'meshwiz open' or pass --name")
}

// rememberSession makes name the default session of later commands.
func rememberSession(name string) {
	ui := state.Load(cfg.DataDir)
	ui.LastSession = name
	if err := state.Save(cfg.DataDir, ui); err != nil {
		logger.Warn("Failed to save UI state: %v", err)
	}
}

// connectStore joins the NATS server of a running meshwiz process when there
// is one, and starts an embedded server on the data directory otherwise.
// The returned cleanup stops whatever was started.
func connectStore(ctx context.Context) (*session.Store, func(), error) {
	dir := natsDir()

	if port, err := nats.ReadPort(dir); err == nil {
		nc, err := nats.ConnectToPort(port)
		if err == nil {
			js, err := nats.CreateJetStream(nc)
			if err != nil {
				nc.Close()
				return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
			}
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			stream, err := nats.SetupStream(sctx, js)
			if err != nil {
				nc.Close()
				return nil, nil, fmt.Errorf("failed to get stream: %w", err)
			}
			return session.NewStore(js, stream), nc.Close, nil
		}
		// The recorded server is gone.
		logger.Warn("Stale NATS port file, starting a new server: %v", err)
		_ = nats.RemovePort(dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	ns, port, err := nats.StartEmbeddedNATS(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start NATS: %w", err)
	}
	nc, err := nats.ConnectInProcess(ns)
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nats.CreateJetStream(nc)
	if err != nil {
		_ = nats.Shutdown(nc, ns)
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	stream, err := nats.SetupStream(ctx, js)
	if err != nil {
		_ = nats.Shutdown(nc, ns)
		return nil, nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	if err := nats.WritePort(dir, port); err != nil {
		logger.Warn("Failed to write NATS port file: %v", err)
	}

	cleanup := func() {
		_ = nats.RemovePort(dir)
		if err := nats.Shutdown(nc, ns); err != nil {
			logger.Warn("NATS shutdown failed: %v", err)
		}
	}
	return session.NewStore(js, stream), cleanup, nil
}

func apiClient() *meshapi.Client {
	var opts []meshapi.Option
	if cfg.APIToken != "" {
		opts = append(opts, meshapi.WithToken(cfg.APIToken))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, meshapi.WithTimeout(cfg.Timeout))
	}
	return meshapi.New(cfg.APIURL, opts...)
}

func synthOptions() (synth.Options, error) {
	selector, err := cfg.GatewaySelectorLabels()
	if err != nil {
		return synth.Options{}, err
	}
	return synth.Options{
		VersionLabel:    cfg.VersionLabel,
		AppLabel:        cfg.AppLabel,
		GatewaySelector: selector,
	}, nil
}

// templateFlags are the message template overrides of submitting commands.
type templateFlags struct {
	successTemplate string
	failureTemplate string
}

// newSubmitter wires the console client, hooks and notifiers of a
// submission. Notifications go to the session log, the logger and extra.
func newSubmitter(store *session.Store, name string, tf templateFlags, extra ...notify.Notifier) (*submit.Submitter, error) {
	success, err := template.GetTemplate(tf.successTemplate, cfg.SuccessMessage)
	if err != nil {
		return nil, err
	}
	failure, err := template.GetTemplate(tf.failureTemplate, cfg.FailureMessage)
	if err != nil {
		return nil, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	hooksCfg, err := hooks.LoadConfig(workDir)
	if err != nil {
		return nil, err
	}

	notifiers := notify.Multi{notify.Bus{Session: name, Publisher: store}, notify.Log{}}
	notifiers = append(notifiers, extra...)

	return submit.New(apiClient(), notifiers, submit.Options{
		Rollback: cfg.RollbackOnFailure,
		Messages: template.Messages{Success: success, Failure: failure},
		Hooks:    hooksCfg,
		WorkDir:  workDir,
		Session:  name,
	}), nil
}
