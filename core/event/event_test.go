package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailbox/core/event"
)

func TestEnvelope_Body(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		body event.Body
	}{
		{"message created", event.MessageCreated{ChannelID: "c1", MessageID: "m1", AuthorID: "u1", Content: "hi", CreatedAt: created}},
		{"message edited", event.MessageEdited{ChannelID: "c1", MessageID: "m1", Content: "hi!", EditedAt: created}},
		{"message deleted", event.MessageDeleted{ChannelID: "c1", MessageID: "m1"}},
		{"members changed", event.MembersChanged{ChannelID: "c1", Added: []string{"u2"}, Removed: []string{"u3"}}},
		{"channel edited", event.ChannelEdited{ChannelID: "c1", Name: "general"}},
		{"channel deleted", event.ChannelDeleted{ChannelID: "c1"}},
		{"preview", event.Preview{ChannelID: "c1", UserID: "u1", Content: "typ"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, err := event.NewEnvelope(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.body.Type(), env.Type)

			data, err := env.Encode()
			require.NoError(t, err)

			decoded, err := event.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, env.ID, decoded.ID)

			body, err := decoded.Body()
			require.NoError(t, err)
			assert.Equal(t, tt.body.Type(), body.Type())
		})
	}
}

func TestEnvelope_UniqueIDs(t *testing.T) {
	t.Parallel()

	a, err := event.NewEnvelope(event.ChannelDeleted{ChannelID: "c"})
	require.NoError(t, err)
	b, err := event.NewEnvelope(event.ChannelDeleted{ChannelID: "c"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnvelope_WireShape(t *testing.T) {
	t.Parallel()

	env, err := event.NewEnvelope(event.MessageDeleted{ChannelID: "c1", MessageID: "m1"})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"id":"`+env.ID.String()+`","type":"message.deleted","payload":{"channel_id":"c1","message_id":"m1"}}`,
		string(data))
}

func TestEnvelope_Errors(t *testing.T) {
	t.Parallel()

	_, err := event.NewEnvelope(nil)
	assert.ErrorIs(t, err, event.ErrNilBody)

	_, err = event.NewEnvelope((*event.MessageCreated)(nil))
	assert.ErrorIs(t, err, event.ErrNilBody)

	env, err := event.NewEnvelope(&event.MessageDeleted{ChannelID: "c", MessageID: "m"})
	require.NoError(t, err)
	assert.Equal(t, event.TypeMessageDeleted, env.Type)

	_, err = event.Decode([]byte("not json"))
	assert.ErrorIs(t, err, event.ErrDecodeFailed)

	_, err = event.Envelope{Type: "bogus", Payload: []byte(`{}`)}.Body()
	assert.ErrorIs(t, err, event.ErrUnknownType)

	_, err = event.Envelope{Type: event.TypeMessageCreated, Payload: []byte(`[1]`)}.Body()
	assert.ErrorIs(t, err, event.ErrDecodeFailed)
}

func TestType_Ephemeral(t *testing.T) {
	t.Parallel()

	assert.True(t, event.TypePreview.Ephemeral())
	assert.False(t, event.TypeMessageCreated.Ephemeral())
	assert.False(t, event.TypeChannelDeleted.Ephemeral())
}
