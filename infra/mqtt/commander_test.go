package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTopics = Topics{Prefix: "ovms/alice/leaf", ClientID: "smartcharge"}

func TestTopics(t *testing.T) {
	tp := Topics{Prefix: "ovms/alice/leaf/", ClientID: "sc"}
	assert.Equal(t, "ovms/alice/leaf/metric/v/b/soc", tp.Metric("v/b/soc"))
	assert.Equal(t, "ovms/alice/leaf/event", tp.Event())
	assert.Equal(t, "ovms/alice/leaf/client/sc/command/42", tp.Command("42"))
	assert.Equal(t, "ovms/alice/leaf/client/sc/response/+", tp.Responses())
	assert.Equal(t, "ovms/alice/leaf/smartcharge/notify", tp.Notify())
	assert.Equal(t, "ovms/alice/leaf/smartcharge/command/+", tp.UserCommand("+"))
	assert.Equal(t, "ovms/alice/leaf/smartcharge/response/7", tp.UserResponse("7"))
	assert.Equal(t, "7", LastSegment(tp.UserResponse("7")))
	assert.Equal(t, "x", LastSegment("x"))
}

func TestCommanderCommands(t *testing.T) {
	b := newMemBroker()
	c, err := NewCommander(b, testTopics)
	require.NoError(t, err)
	assert.True(t, b.subscribed(testTopics.Responses()))

	ctx := context.Background()
	require.NoError(t, c.StartCharge(ctx))
	require.NoError(t, c.StopCharge(ctx))
	require.NoError(t, c.SetAutoStopTarget(ctx, 85))

	msgs := b.messages()
	require.Len(t, msgs, 4)
	want := []string{"charge start", "charge stop", "config set xnl autocharge yes", "config set xnl suffsoc 85"}
	for i, m := range msgs {
		assert.Equal(t, want[i], m.payload)
		prefix := "ovms/alice/leaf/client/smartcharge/command/"
		require.True(t, strings.HasPrefix(m.topic, prefix), m.topic)
		_, err := uuid.Parse(strings.TrimPrefix(m.topic, prefix))
		assert.NoError(t, err, "command id must be a uuid")
	}
}

func TestCommanderPublishFailure(t *testing.T) {
	b := newMemBroker()
	c, err := NewCommander(b, testTopics)
	require.NoError(t, err)
	b.failWith = errors.New("offline")
	err = c.StartCharge(context.Background())
	assert.ErrorContains(t, err, "charge start")
	assert.ErrorContains(t, err, "offline")
}

func TestCommanderLogsResponses(t *testing.T) {
	b := newMemBroker()
	_, err := NewCommander(b, testTopics)
	require.NoError(t, err)
	// A response is consumed without side effects.
	require.NoError(t, b.Publish(context.Background(), "ovms/alice/leaf/client/smartcharge/response/1", false, []byte("Charge has been started")))
}
