package moderation

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules"
)

func TestSentrySinkCapturesExtras(t *testing.T) {
	var captured []*sentry.Event
	sink, err := NewSentrySink(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			captured = append(captured, event)
			return nil
		},
	})
	require.NoError(t, err)

	user := &farcaster.User{FID: 42, Username: "alice"}
	action := rules.Action{Type: "ban"}
	sink.CaptureMessage("Error in ban action", map[string]any{"user": user, "action": action})
	sink.Flush(time.Second)

	require.Len(t, captured, 1)
	assert.Equal(t, "Error in ban action", captured[0].Message)
	assert.Equal(t, user, captured[0].Extra["user"])
	assert.Equal(t, action, captured[0].Extra["action"])

	// extras do not leak into the next event
	sink.CaptureMessage("Error in like action", nil)
	require.Len(t, captured, 2)
	assert.NotContains(t, captured[1].Extra, "user")
}

func TestRecordingSinkCopiesExtras(t *testing.T) {
	sink := &RecordingSink{}
	extra := map[string]any{"action": "ban"}
	sink.CaptureMessage("Error in ban action", extra)
	extra["action"] = "like"

	messages := sink.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ban", messages[0].Extra["action"])

	NopSink{}.CaptureMessage("ignored", nil)
}
