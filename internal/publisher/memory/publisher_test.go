package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordsJSON(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "scrapes", map[string]string{"job_id": "j1", "status": "completed"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)

	id, err = pub.Publish(context.Background(), "audit", "hello")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)
	assert.Equal(t, 2, pub.Len())

	msgs := pub.ByTopic("scrapes")
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"job_id":"j1","status":"completed"}`, string(msgs[0].Data))

	var body map[string]string
	require.NoError(t, msgs[0].Decode(&body))
	assert.Equal(t, "completed", body["status"])

	last, ok := pub.Last()
	require.True(t, ok)
	assert.Equal(t, "audit", last.Topic)
	assert.Equal(t, `"hello"`, string(last.Data))
}

func TestPublishRejects(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "scrapes", func() {})
	require.ErrorContains(t, err, "encode payload")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "scrapes", "x")
	require.ErrorIs(t, err, context.Canceled)

	_, ok := pub.Last()
	assert.False(t, ok)
	assert.Zero(t, pub.Len())
}
