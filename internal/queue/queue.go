package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"
)

// Producer is the publish surface the saga engine and webhook dispatcher
// need. *nsq.Producer satisfies it.
type Producer interface {
	Publish(topic string, body []byte) error
	DeferredPublish(topic string, delay time.Duration, body []byte) error
}

// NewProducer connects a producer to nsqd over TCP.
func NewProducer(nsqdTCPAddr string) (*nsq.Producer, error) {
	p, err := nsq.NewProducer(nsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("creating nsq producer: %w", err)
	}
	return p, nil
}

// Enqueue marshals v to JSON and publishes it on topic.
func Enqueue(p Producer, topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s message: %w", topic, err)
	}
	if err := p.Publish(topic, body); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// EnqueueAfter marshals v to JSON and publishes it on topic after delay.
// Deferred publish is how step retries wait out their backoff without
// holding a message in flight.
func EnqueueAfter(p Producer, topic string, delay time.Duration, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s message: %w", topic, err)
	}
	if err := p.DeferredPublish(topic, delay, body); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// NewConsumer builds an NSQ consumer for topic/channel with the handler
// attached. Handlers are expected to call DisableAutoResponse and finish or
// requeue explicitly.
func NewConsumer(topic, channel string, maxInFlight int, h nsq.Handler) (*nsq.Consumer, error) {
	conf := nsq.NewConfig()
	if maxInFlight > 0 {
		conf.MaxInFlight = maxInFlight
	}
	c, err := nsq.NewConsumer(topic, channel, conf)
	if err != nil {
		return nil, fmt.Errorf("creating %s consumer: %w", topic, err)
	}
	c.AddHandler(h)
	return c, nil
}

// Connect attaches the consumer to nsqd and lookupd. Connecting directly to
// NSQD forces channel creation, instead of the channel being lazily created
// on first publish.
func Connect(c *nsq.Consumer, nsqdTCPAddr, lookupHTTPAddr string) error {
	if err := c.ConnectToNSQD(nsqdTCPAddr); err != nil {
		return fmt.Errorf("connect to nsqd: %w", err)
	}
	if err := c.ConnectToNSQLookupd(lookupHTTPAddr); err != nil {
		return fmt.Errorf("connect to lookupd: %w", err)
	}
	return nil
}
