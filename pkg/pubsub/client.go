package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// Client owns the Pub/Sub connection used by the outbox relay. Publishers are
// created once per topic and stopped on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu     sync.Mutex
	topics map[string]*Topic
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub order events topic is required")
	errClientClosed      = errors.New("pubsub client not initialized")
)

// NewClient dials Pub/Sub and fails fast when the order events topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.OrderEventsTopic) == "" {
		return nil, errTopicRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
		topics:    map[string]*Topic{},
	}
	if err := c.checkTopic(ctx, cfg.OrderEventsTopic); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", cfg.OrderEventsTopic), "pubsub.ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", name)
	default:
		return fmt.Errorf("look up topic %q: %w", name, err)
	}
}

// Topic returns the cached handle for name, creating it on first use. Order
// events are published with ordering enabled so one order's events arrive in
// sequence.
func (c *Client) Topic(name string) (*Topic, error) {
	if c == nil || c.client == nil {
		return nil, errClientClosed
	}
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return nil, fmt.Errorf("topic %q not configured", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.topics[fullName]; ok {
		return t, nil
	}
	publisher := c.client.Publisher(fullName)
	publisher.EnableMessageOrdering = true
	t := &Topic{name: fullName, publisher: publisher}
	c.topics[fullName] = t
	return t, nil
}

// Ping re-checks the order events topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClientClosed
	}
	return c.checkTopic(ctx, c.cfg.OrderEventsTopic)
}

// Close flushes every publisher handed out by Topic, then closes the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, t := range c.topics {
		t.publisher.Stop()
		delete(c.topics, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// Topic publishes to one topic and waits for the server ack.
type Topic struct {
	name      string
	publisher *pubsub.Publisher
}

func (t *Topic) Name() string { return t.name }

// Publish sends msg and blocks until Pub/Sub acks it or ctx ends. A failed
// ordered publish pauses its ordering key, so the key is resumed before
// returning the error.
func (t *Topic) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	id, err := t.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			t.publisher.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish to %s: %w", t.name, err)
	}
	return id, nil
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
