// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// HandlerTimeout bounds the context passed to request handlers.
const HandlerTimeout = 30 * time.Second

type Client struct{ nc *nats.Conn }

func Connect(url string, name string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// HandleJSON answers requests on subject with the JSON encoding of
// whatever handler returns. A non-empty queue load-balances across
// subscribers.
func (c *Client) HandleJSON(subject, queue string, handler func(ctx context.Context, subject string, data []byte) any) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), HandlerTimeout)
		defer cancel()
		out, err := json.Marshal(handler(ctx, msg.Subject, msg.Data))
		if err != nil {
			out = []byte(`{"error":"encode reply","code":"internal"}`)
		}
		if msg.Reply != "" {
			_ = msg.Respond(out)
		}
	}
	if queue == "" {
		return c.nc.Subscribe(subject, cb)
	}
	return c.nc.QueueSubscribe(subject, queue, cb)
}

// RequestJSON sends req to subject and decodes the reply into resp.
func (c *Client) RequestJSON(ctx context.Context, subject string, req, resp any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, b)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
