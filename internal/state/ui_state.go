package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/meshwiz/internal/logger"
)

const fileName = "ui-state.json"

// Presenter names.
const (
	PresenterTUI   = "tui"
	PresenterPlain = "plain"
)

// UIState holds preferences that carry across sessions.
type UIState struct {
	Preview     PreviewState `json:"preview"`
	LastSession string       `json:"last_session,omitempty"`
}

// PreviewState holds the preview presenter preferences.
type PreviewState struct {
	ShowDiff  bool   `json:"show_diff"`
	Presenter string `json:"presenter"`
}

// DefaultUIState returns the default UI state.
func DefaultUIState() *UIState {
	return &UIState{
		Preview: PreviewState{
			ShowDiff:  false,
			Presenter: PresenterTUI,
		},
	}
}

// Load reads the UI state from <dataDir>/ui-state.json.
// Returns default state if the file doesn't exist or on error.
func Load(dataDir string) *UIState {
	path := filepath.Join(dataDir, fileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultUIState()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Failed to read UI state file: %v", err)
		return DefaultUIState()
	}

	state := DefaultUIState()
	if err := json.Unmarshal(data, state); err != nil {
		logger.Warn("Failed to parse UI state JSON: %v", err)
		return DefaultUIState()
	}
	switch state.Preview.Presenter {
	case PresenterTUI, PresenterPlain:
	default:
		logger.Warn("Unknown presenter %q in UI state, using %s", state.Preview.Presenter, PresenterTUI)
		state.Preview.Presenter = PresenterTUI
	}

	return state
}

// Save writes the UI state to <dataDir>/ui-state.json.
// Creates the data directory if it doesn't exist.
func Save(dataDir string, state *UIState) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, fileName)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling UI state: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing UI state file: %w", err)
	}

	logger.Debug("UI state saved to %s", path)
	return nil
}
