package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dukerupert/closeshop/internal/client/backend"
	"github.com/dukerupert/closeshop/internal/model"
	"github.com/dukerupert/closeshop/internal/realtime"
)

type subscription struct {
	conn   *ws.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close tears the stream down and waits for the reader to exit.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// SubscribeInserts opens a websocket filtered to INSERTs on userID's
// notifications. It returns once the backend has acknowledged the
// subscription, so no row inserted afterwards is missed.
func (c *Client) SubscribeInserts(ctx context.Context, userID string, fn func(model.Notification)) (backend.Subscription, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	u, err := c.realtimeURL(userID, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := ws.Dial(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: realtime subscribe", backend.ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	var ack realtime.Event
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("read subscribe ack: %w", err)
	}
	if ack.Type != realtime.EventSubscribed {
		conn.CloseNow()
		return nil, fmt.Errorf("unexpected first event %q", ack.Type)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{conn: conn, cancel: cancel, done: make(chan struct{})}
	go c.readEvents(streamCtx, sub, fn)
	return sub, nil
}

func (c *Client) readEvents(ctx context.Context, sub *subscription, fn func(model.Notification)) {
	defer close(sub.done)
	defer sub.conn.CloseNow()

	for {
		var ev realtime.Event
		if err := wsjson.Read(ctx, sub.conn, &ev); err != nil {
			if ctx.Err() == nil && ws.CloseStatus(err) != ws.StatusNormalClosure {
				c.logger.Warn("realtime stream ended", "error", err)
			}
			return
		}
		if ev.Type != realtime.EventInsert || ev.Table != realtime.TableNotifications {
			continue
		}
		var n model.Notification
		if err := json.Unmarshal(ev.Record, &n); err != nil {
			c.logger.Warn("decode realtime record", "error", err)
			continue
		}
		fn(n)
	}
}

func (c *Client) realtimeURL(userID, token string) (string, error) {
	u, err := url.Parse(c.baseURL + "/realtime/v1/websocket")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := url.Values{}
	q.Set("table", realtime.TableNotifications)
	q.Set("event", realtime.EventInsert)
	q.Set("filter", "user_id=eq."+userID)
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
