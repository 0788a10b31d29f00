package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubject is the subject prefix CoT events are mirrored under
	DefaultSubject = "cot.events"
	// HeaderRunID carries the bridge run id on every mirrored event
	HeaderRunID = "Run-Id"
)

// Client mirrors CoT events onto NATS core subjects. Core publish keeps the
// mirror fire-and-forget like the UDP path; nothing is stored server side.
type Client struct {
	conn    *nats.Conn
	subject string
	runID   string
}

// New creates a new NATS client
func New(url, subject, runID string) (*Client, error) {
	if url == "" {
		return nil, errors.New("failed to connect to NATS: empty URL")
	}
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url,
		nats.Name("sbs2cot"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{
		conn:    nc,
		subject: subject,
		runID:   runID,
	}, nil
}

// SubjectFor returns the subject a given event uid is published on
func SubjectFor(prefix, uid string) string {
	return prefix + "." + sanitizeToken(uid)
}

func sanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// PublishCoT publishes one CoT payload for the given event uid
func (c *Client) PublishCoT(uid string, payload []byte) error {
	msg := nats.NewMsg(SubjectFor(c.subject, uid))
	msg.Data = payload
	if c.runID != "" {
		msg.Header.Set(HeaderRunID, c.runID)
	}

	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// SubscribeCoT subscribes to every mirrored event
func (c *Client) SubscribeCoT(handler func(subject, runID string, payload []byte)) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(c.subject+".>", func(msg *nats.Msg) {
		handler(msg.Subject, msg.Header.Get(HeaderRunID), msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

// Flush waits until the server has processed everything published so far
func (c *Client) Flush(ctx context.Context) error {
	return c.conn.FlushWithContext(ctx)
}

// Check reports an error unless the connection is up
func (c *Client) Check(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("not connected")
	}
	if status := c.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("connection %s", status)
	}
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
