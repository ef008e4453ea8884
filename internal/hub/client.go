// Package hub consumes the upstream smart-home hub's websocket feed: auth
// handshake, registry fetch, and the live state_changed event stream. It
// also provides the reconnect supervisor that keeps the feed alive.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/domain"
)

// ErrAuth means the upstream rejected the access token. The supervisor
// keeps retrying; a misconfigured token will never succeed, so operator
// visibility is via logs.
var ErrAuth = errors.New("upstream authentication failed")

// ErrConnection covers the expected connection failures that trigger
// backoff and reconnect.
var ErrConnection = errors.New("upstream connection error")

type serverFrame struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *wireEvent      `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

type wireEvent struct {
	EventType string        `json:"event_type"`
	TimeFired string        `json:"time_fired"`
	Data      wireEventData `json:"data"`
	Context   wireContext   `json:"context"`
}

type wireEventData struct {
	EntityID string         `json:"entity_id"`
	NewState map[string]any `json:"new_state"`
}

type wireContext struct {
	ID string `json:"id"`
}

// Client is a connected upstream session. It is driven by a single
// goroutine: handshake, registry fetch, subscribe, then the Next loop.
type Client struct {
	conn   *websocket.Conn
	token  string
	nextID int64
	log    *zap.Logger
}

// Dial connects to the upstream websocket endpoint and completes the auth
// handshake. The upstream announces auth_required before anything else; if
// it does not, no credentials are sent.
func Dial(ctx context.Context, url, token string, log *zap.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, url, err)
	}

	c := &Client{conn: conn, token: token, log: log}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Close tears down the underlying connection. Safe to call concurrently
// with a blocked read; the read fails and the stream ends.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) handshake() error {
	frame, err := c.readFrame()
	if err != nil {
		return err
	}

	switch frame.Type {
	case "auth_ok":
		return nil
	case "auth_required":
	default:
		c.log.Info("upstream authentication not required")
		return nil
	}

	if err := c.writeJSON(map[string]any{"type": "auth", "access_token": c.token}); err != nil {
		return err
	}

	frame, err = c.readFrame()
	if err != nil {
		return err
	}
	if frame.Type != "auth_ok" {
		return fmt.Errorf("%w: upstream answered %q", ErrAuth, frame.Type)
	}
	return nil
}

// SubscribeEvents subscribes to state_changed events. A failed subscribe is
// treated as a connection error so the supervisor reconnects.
func (c *Client) SubscribeEvents(ctx context.Context) error {
	result, err := c.request(ctx, map[string]any{
		"type":       "subscribe_events",
		"event_type": "state_changed",
	})
	if err != nil {
		return err
	}
	if result.Success == nil || !*result.Success {
		return fmt.Errorf("%w: subscribe_events rejected", ErrConnection)
	}
	return nil
}

// Next yields the next state-change event from the live stream. Result
// frames arriving mid-stream are logged and skipped. Next returns an error
// once the connection closes; the client is not restartable after that.
func (c *Client) Next(ctx context.Context) (*domain.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		switch frame.Type {
		case "event":
			if frame.Event == nil {
				return nil, fmt.Errorf("%w: event frame without event payload", ErrConnection)
			}
			return mapEvent(frame.Event)
		case "result":
			c.log.Warn("result frame received while streaming", zap.Int64("id", frame.ID))
		default:
			return nil, fmt.Errorf("%w: unexpected frame type %q", ErrConnection, frame.Type)
		}
	}
}

// request sends one id-tagged command and waits for its result frame.
func (c *Client) request(ctx context.Context, payload map[string]any) (*serverFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.nextID++
	id := c.nextID
	payload["id"] = id
	if err := c.writeJSON(payload); err != nil {
		return nil, err
	}

	for {
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		if frame.Type == "result" && frame.ID == id {
			return frame, nil
		}
		c.log.Warn("unmatched frame while awaiting result",
			zap.String("type", frame.Type), zap.Int64("id", frame.ID))
	}
}

func (c *Client) readFrame() (*serverFrame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrConnection, err)
	}
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrConnection, err)
	}
	return &frame, nil
}

func (c *Client) writeJSON(v any) error {
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnection, err)
	}
	return nil
}

// mapEvent converts an upstream state_changed event into the domain record.
// The upstream context id becomes the dedupe key; the new_state payload is
// carried opaquely as the event data.
func mapEvent(ev *wireEvent) (*domain.Event, error) {
	fired, err := time.Parse(time.RFC3339Nano, ev.TimeFired)
	if err != nil {
		return nil, fmt.Errorf("%w: parse time_fired %q: %v", ErrConnection, ev.TimeFired, err)
	}

	newState := ev.Data.NewState
	var state, unit *string
	if s, ok := newState["state"].(string); ok {
		state = &s
	}
	if attrs, ok := newState["attributes"].(map[string]any); ok {
		if u, ok := attrs["unit_of_measurement"].(string); ok {
			unit = &u
		}
	}

	return &domain.Event{
		EntityID:   ev.Data.EntityID,
		Domain:     domain.EntityDomain(ev.Data.EntityID),
		EventID:    uuid.New(),
		EventType:  ev.EventType,
		ExternalID: ev.Context.ID,
		State:      state,
		Unit:       unit,
		Timestamp:  fired.UTC(),
		Data:       newState,
	}, nil
}
