package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// cachedPublishers keeps one ordered publisher per topic. Ordering keys are
// tracked per publisher instance, so handles must not be recreated per row.
func cachedPublishers(client pubSubClient) publisherFactory {
	var mu sync.Mutex
	byTopic := make(map[string]publisher)
	return func(topic string) publisher {
		mu.Lock()
		defer mu.Unlock()
		if pub, ok := byTopic[topic]; ok {
			return pub
		}
		raw := client.OrderedPublisher(topic)
		if raw == nil {
			return nil
		}
		pub := &gcpPublisher{Publisher: raw}
		byTopic[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{
		result:      p.Publisher.Publish(ctx, msg),
		publisher:   p.Publisher,
		orderingKey: msg.OrderingKey,
	}
}

type gcpPublishResult struct {
	result      *gcppubsub.PublishResult
	publisher   *gcppubsub.Publisher
	orderingKey string
}

// Get waits for the server ack. A failed ordered publish pauses its key, so
// the key is resumed before the row is retried.
func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.result == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.result.Get(ctx)
	if err != nil && r.orderingKey != "" {
		r.publisher.ResumePublish(r.orderingKey)
	}
	return id, err
}
