// Package notify pushes notifications to phones through ntfy topics.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Priority is the ntfy message priority header value.
type Priority string

const (
	PriorityMin     Priority = "min"
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
)

// Message is one push notification.
type Message struct {
	Title    string
	Body     string
	Priority Priority
	Tags     []string
}

// Client publishes messages to a single ntfy topic. An empty topic
// disables publishing, which keeps notification call sites unconditional.
type Client struct {
	baseURL    string
	topic      string
	httpClient *http.Client
}

// NewClient creates a notification client for the given server and topic.
func NewClient(baseURL, topic string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		topic:      topic,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a topic is configured.
func (c *Client) Enabled() bool { return c.topic != "" }

// Send publishes one message to the topic.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Enabled() {
		log.Debug().Str("title", msg.Title).Msg("notifications disabled, message dropped")
		return nil
	}

	url := c.baseURL + "/" + c.topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg.Body))
	if err != nil {
		return err
	}
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Priority != "" {
		req.Header.Set("Priority", string(msg.Priority))
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	log.Debug().
		Str("topic", c.topic).
		Str("title", msg.Title).
		Msg("notification sent")
	return nil
}

// Notify publishes a plain default-priority message. It satisfies the
// notifier the alert tasks depend on.
func (c *Client) Notify(ctx context.Context, title, body string) error {
	return c.Send(ctx, Message{Title: title, Body: body, Priority: PriorityDefault})
}
