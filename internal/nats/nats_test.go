package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "meshwiz.s1.>", SubjectForSession("s1"))
	assert.Equal(t, "meshwiz.s1.action", SubjectForEvent("s1", EventTypeAction))

	name, ok := SessionFromSubject("meshwiz.bookinfo-reviews.notification")
	assert.True(t, ok)
	assert.Equal(t, "bookinfo-reviews", name)

	_, ok = SessionFromSubject("other.s1.action")
	assert.False(t, ok)
	_, ok = SessionFromSubject("meshwiz.s1")
	assert.False(t, ok)
}

func TestPortFile(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadPort(dir)
	assert.Error(t, err)

	require.NoError(t, WritePort(dir, 4222))
	port, err := ReadPort(dir)
	require.NoError(t, err)
	assert.Equal(t, 4222, port)

	require.NoError(t, RemovePort(dir))
	require.NoError(t, RemovePort(dir))
}

func TestEmbeddedServer(t *testing.T) {
	ns, port, err := StartEmbeddedNATS(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, port, 0)

	nc, err := ConnectToPort(port)
	require.NoError(t, err)

	js, err := CreateJetStream(nc)
	require.NoError(t, err)

	ctx := context.Background()
	stream, err := SetupStream(ctx, js)
	require.NoError(t, err)

	for _, subject := range []string{
		SubjectForEvent("b-session", EventTypeAction),
		SubjectForEvent("a-session", EventTypeAction),
		SubjectForEvent("a-session", EventTypeNotification),
	} {
		_, err := js.Publish(ctx, subject, []byte(`{}`))
		require.NoError(t, err)
	}

	sessions, err := Sessions(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-session", "b-session"}, sessions)

	require.NoError(t, Shutdown(nc, ns))
}
