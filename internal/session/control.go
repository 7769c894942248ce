package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/meshwiz/internal/nats"
	"github.com/mark3labs/meshwiz/internal/notify"
	"github.com/mark3labs/meshwiz/internal/submit"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/rs/xid"
)

// ErrCancelled is returned when the preview was not confirmed.
var ErrCancelled = errors.New("submission cancelled")

// PublishAction appends a wizard action to the session log.
func (s *Store) PublishAction(ctx context.Context, session string, a wizard.Action) error {
	meta, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal %s action: %w", a.Kind(), err)
	}
	_, err = s.PublishEvent(ctx, Event{
		ID:      xid.New().String(),
		Session: session,
		Type:    nats.EventTypeAction,
		Action:  a.Kind(),
		Meta:    meta,
		Data:    a.Kind(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s action: %w", a.Kind(), err)
	}
	return nil
}

// Dispatch applies a to the current wizard state, persists it and returns
// the new state. Every action except open requires an open wizard.
func (s *Store) Dispatch(ctx context.Context, session string, a wizard.Action) (wizard.State, error) {
	st, err := s.LoadState(ctx, session)
	if err != nil {
		return wizard.State{}, fmt.Errorf("failed to load session state: %w", err)
	}
	if a.Kind() != wizard.ActionOpen && !st.Wizard.Open {
		return st.Wizard, wizard.ErrNotOpen
	}
	next := wizard.Reduce(st.Wizard, a)
	if err := s.PublishAction(ctx, session, a); err != nil {
		return st.Wizard, err
	}
	return next, nil
}

// Open opens (or reopens) the wizard of a session.
func (s *Store) Open(ctx context.Context, session string, in wizard.Inputs) (wizard.State, error) {
	return s.Dispatch(ctx, session, wizard.OpenAction{Inputs: in})
}

// Close closes the wizard of a session.
func (s *Store) Close(ctx context.Context, session string, changed bool) error {
	_, err := s.Dispatch(ctx, session, wizard.CloseAction{Changed: changed})
	return err
}

// PublishNotification stores a notification in the session log.
func (s *Store) PublishNotification(ctx context.Context, session string, n notify.Notification) error {
	meta, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		ID:      xid.New().String(),
		Session: session,
		Type:    nats.EventTypeNotification,
		Action:  string(n.Severity),
		Meta:    meta,
		Data:    n.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Review shows the documents about to be written and returns the
// (possibly edited) set and whether the user confirmed it.
type Review func(ctx context.Context, st wizard.State, set synth.PreviewSet) (synth.PreviewSet, bool, error)

// AutoConfirm accepts the synthesized documents unchanged.
func AutoConfirm(_ context.Context, _ wizard.State, set synth.PreviewSet) (synth.PreviewSet, bool, error) {
	return set, true, nil
}

// Submit runs the whole submission of a session: synthesize, review,
// mark the wizard as submitting, write, then close the wizard. A submission
// already marked in the log is reported as submit.ErrInProgress, even when
// it runs in another process.
func (s *Store) Submit(ctx context.Context, session string, sub *submit.Submitter, opts synth.Options, review Review) (submit.Result, error) {
	st, err := s.LoadState(ctx, session)
	if err != nil {
		return submit.Result{}, fmt.Errorf("failed to load session state: %w", err)
	}
	w := st.Wizard
	switch {
	case !w.Open:
		return submit.Result{}, wizard.ErrNotOpen
	case w.Submitting:
		return submit.Result{}, submit.ErrInProgress
	}

	if review == nil {
		review = AutoConfirm
	}
	set, ok, err := review(ctx, w, synth.Synthesize(w, opts))
	if err != nil {
		return submit.Result{}, err
	}
	if !ok {
		return submit.Result{}, ErrCancelled
	}

	res, err := sub.Submit(ctx, submit.Request{
		State:    w,
		Previews: set,
		OnStart: func(ctx context.Context) error {
			return s.PublishAction(ctx, session, wizard.SubmitStartedAction{})
		},
	})
	if err != nil {
		return res, err
	}

	if err := s.PublishAction(ctx, session, wizard.CloseAction{Changed: res.Changed}); err != nil {
		log.Error("Failed to close wizard after submission: %v", err)
		return res, err
	}
	return res, nil
}
