package nats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Subject pattern constants and helpers
const (
	streamName    = "meshwiz_events"
	subjectPrefix = "meshwiz"

	// Event types
	EventTypeAction       = "action"
	EventTypeNotification = "notification"
)

// SubjectForSession returns the wildcard subject pattern for all events in a session.
// Example: "meshwiz.bookinfo-reviews-traffic-shifting.>"
func SubjectForSession(session string) string {
	return fmt.Sprintf("%s.%s.>", subjectPrefix, session)
}

// SubjectForEvent returns the specific subject for an event type in a session.
// Example: "meshwiz.bookinfo-reviews-traffic-shifting.action"
func SubjectForEvent(session, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, session, eventType)
}

// SessionFromSubject extracts the session name from an event subject.
func SessionFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != subjectPrefix {
		return "", false
	}
	return parts[1], true
}

// SetupStream creates or updates the JetStream stream for meshwiz events.
// The stream captures all events for all sessions with 30-day retention.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
}

// Sessions lists the sessions that have events in the stream.
func Sessions(ctx context.Context, stream jetstream.Stream) ([]string, error) {
	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(subjectPrefix+".>"))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream info: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for subject := range info.State.Subjects {
		if name, ok := SessionFromSubject(subject); ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
