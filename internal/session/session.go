// Package session stores wizard sessions as an append-only event log in
// JetStream. A session's wizard state is the fold of its actions.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gosimple/slug"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/nats"
	"github.com/mark3labs/meshwiz/internal/notify"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/nats-io/nats.go/jetstream"
)

var log = logger.With("session")

// Event represents a generic event stored in the JetStream event log.
// Wizard actions and notifications are both stored as events.
type Event struct {
	ID        string          `json:"id"`        // xid, or the stream sequence for events without one
	Timestamp time.Time       `json:"timestamp"` // When the event occurred
	Session   string          `json:"session"`   // Session name
	Type      string          `json:"type"`      // Event type: action, notification
	Action    string          `json:"action"`    // Action kind for action events, severity for notifications
	Meta      json.RawMessage `json:"meta"`      // Encoded action or notification
	Data      string          `json:"data"`      // Human readable summary
}

// Store manages session state through JetStream event sourcing.
type Store struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewStore creates a new Store instance with the given JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{
		js:     js,
		stream: stream,
	}
}

// Name derives the session name for a wizard on a service. Names are safe
// to use as a NATS subject token.
func Name(namespace, service string, t wizard.Type) string {
	return slug.Make(namespace + "-" + service + "-" + string(t))
}

// PublishEvent appends an event to the JetStream event log.
// Events are published to subjects following the pattern: meshwiz.{session}.{type}
func (s *Store) PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal event: %v", err)
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Session, event.Type)
	log.Debug("Publishing event: session=%s type=%s action=%s", event.Session, event.Type, event.Action)

	ack, err := s.js.Publish(ctx, subject, data)
	if err != nil {
		log.Error("Failed to publish event to subject %s: %v", subject, err)
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug("Event published successfully: seq=%d", ack.Sequence)
	return ack, nil
}

// State represents the current state of a session, reconstructed from events.
type State struct {
	Session       string                `json:"session"`
	Wizard        wizard.State          `json:"wizard"`
	Notifications []notify.Notification `json:"notifications"`
	Events        int                   `json:"events"`
}

// Apply folds one event into the state.
func (st *State) Apply(event Event) {
	st.Events++
	switch event.Type {
	case nats.EventTypeAction:
		a, err := wizard.DecodeAction(event.Action, event.Meta)
		if err != nil {
			log.Warn("Skipping undecodable action %s (id=%s): %v", event.Action, event.ID, err)
			return
		}
		st.Wizard = wizard.Reduce(st.Wizard, a)

	case nats.EventTypeNotification:
		var n notify.Notification
		if err := json.Unmarshal(event.Meta, &n); err != nil {
			log.Warn("Skipping undecodable notification (id=%s): %v", event.ID, err)
			return
		}
		if n.Time.IsZero() {
			n.Time = event.Timestamp
		}
		st.Notifications = append(st.Notifications, n)
	}
}

// LoadState reconstructs the current state of a session by reading and reducing
// all events from the JetStream event log.
func (s *Store) LoadState(ctx context.Context, session string) (*State, error) {
	log.Debug("Loading state for session: %s", session)

	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: nats.SubjectForSession(session),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		log.Error("Failed to create consumer for session %s: %v", session, err)
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	state := &State{Session: session, Wizard: wizard.Empty()}

	// Fetch events in batches and reduce into state
	const batchSize = 1000
	malformedCount := 0
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			log.Debug("Finished reading events (batch fetch complete)")
			break
		}

		msgCount := 0
		for msg := range msgs.Messages() {
			msgCount++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				// Acknowledge malformed events too so they are not redelivered.
				malformedCount++
				meta, _ := msg.Metadata()
				log.Warn("Skipping malformed event (seq=%d): %v", meta.Sequence.Stream, err)
				msg.Ack()
				continue
			}

			if event.ID == "" {
				meta, _ := msg.Metadata()
				event.ID = fmt.Sprintf("%d", meta.Sequence.Stream)
			}

			state.Apply(event)
			msg.Ack()
		}

		if msgCount < batchSize {
			break
		}
	}

	if malformedCount > 0 {
		log.Warn("Skipped %d malformed events while loading state", malformedCount)
		fmt.Fprintf(os.Stderr, "Warning: Skipped %d malformed events while loading state\n", malformedCount)
	}

	log.Debug("State loaded: %d events, open=%t, %d notifications",
		state.Events, state.Wizard.Open, len(state.Notifications))
	return state, nil
}

// Sessions lists every session with stored events.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	return nats.Sessions(ctx, s.stream)
}
