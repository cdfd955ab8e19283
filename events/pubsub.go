/*
Package events carries ActivityCreated over Google Cloud Pub/Sub.

DELIVERY:
  Pub/Sub is at-least-once. The subscriber runs the goal updater, which is
  idempotent per (activity, goal), so redelivery never double counts.

ACK POLICY:
  - success:                ack
  - malformed payload:      ack (logged; redelivery cannot fix it)
  - validation/not found:   ack (logged)
  - transient store error:  nack, Pub/Sub redelivers later
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"github.com/warp/performance-engine/scoring"
)

// ActivityCreated is the wire payload.
type ActivityCreated struct {
	Activity scoring.Activity `json:"activity"`
}

// EnsureTopic returns the topic, creating it if needed.
func EnsureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	t := client.Topic(name)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic exists: %w", err)
	}
	if ok {
		return t, nil
	}
	t, err = client.CreateTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", name, err)
	}
	return t, nil
}

// EnsureSubscription returns the subscription, creating it on topic if needed.
func EnsureSubscription(ctx context.Context, client *pubsub.Client, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := client.Subscription(name)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription exists: %w", err)
	}
	if ok {
		return sub, nil
	}
	sub, err = client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 20 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", name, err)
	}
	return sub, nil
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Publisher is a scoring.Dispatcher that publishes to a topic.
type Publisher struct {
	topic *pubsub.Topic
}

var _ scoring.Dispatcher = (*Publisher)(nil)

func NewPublisher(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// ActivityCreated publishes the event and waits for the server ack.
func (p *Publisher) ActivityCreated(ctx context.Context, a scoring.Activity) error {
	data, err := json.Marshal(ActivityCreated{Activity: a})
	if err != nil {
		return err
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"activity_id": string(a.ID),
			"user_id":     string(a.UserID),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish activity %s: %w", a.ID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	p.topic.Stop()
}

// =============================================================================
// SUBSCRIBER
// =============================================================================

// Subscriber feeds received events to the goal updater.
type Subscriber struct {
	sub   *pubsub.Subscription
	goals *scoring.GoalUpdater
	log   logrus.FieldLogger
}

func NewSubscriber(sub *pubsub.Subscription, goals *scoring.GoalUpdater, log logrus.FieldLogger) *Subscriber {
	return &Subscriber{sub: sub, goals: goals, log: log.WithField("component", "events")}
}

// Run receives until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if err := s.Handle(ctx, m.Data); err != nil && scoring.IsRetryable(err) {
			m.Nack()
			return
		}
		m.Ack()
	})
}

// Handle processes one payload. Only a returned error that IsRetryable
// should cause redelivery; other errors are already logged.
func (s *Subscriber) Handle(ctx context.Context, data []byte) error {
	var evt ActivityCreated
	if err := json.Unmarshal(data, &evt); err != nil {
		s.log.WithError(err).Error("dropping malformed ActivityCreated payload")
		return err
	}

	log := s.log.WithFields(logrus.Fields{
		"activity_id": evt.Activity.ID,
		"user_id":     evt.Activity.UserID,
	})

	res, err := s.goals.Apply(ctx, evt.Activity)
	if err != nil {
		if scoring.IsRetryable(err) {
			log.WithError(err).Warn("goal fan-out failed; requesting redelivery")
		} else {
			log.WithError(err).Error("goal fan-out rejected")
		}
		return err
	}

	log.WithFields(logrus.Fields{
		"applied": res.Applied,
		"skipped": res.Skipped,
	}).Debug("ActivityCreated handled")
	return nil
}
