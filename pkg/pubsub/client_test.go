package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "projects/shop/topics/orders", TopicResourceName("shop", "orders"))
	assert.Equal(t, "projects/shop/subscriptions/emails", SubscriptionResourceName("shop", " emails "))
	assert.Equal(t, "projects/other/topics/orders", TopicResourceName("shop", "projects/other/topics/orders"))
	assert.Equal(t, "", TopicResourceName("", "orders"))
	assert.Equal(t, "", SubscriptionResourceName("shop", ""))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.PubSubConfig{OrdersTopic: "orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.OrdersPublisher())
	assert.Nil(t, c.OrdersSubscriber())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
