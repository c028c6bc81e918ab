package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gpo-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/gpo-events", resourceName("p1", "topics", "gpo-events"))
	assert.Equal(t, "projects/other/topics/t", resourceName("p1", "topics", "projects/other/topics/t"))
	assert.Equal(t, "projects/p1/subscriptions/s", resourceName("p1", "subscriptions", " s "))
	assert.Empty(t, resourceName("", "topics", "t"))
	assert.Empty(t, resourceName("p1", "topics", "  "))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{GPOEventsTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.OrderedPublisher("gpo-events"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
