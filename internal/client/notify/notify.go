// Package notify keeps the signed-in user's notifications in memory and
// follows new ones over the realtime stream.
package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukerupert/closeshop/internal/client/backend"
	"github.com/dukerupert/closeshop/internal/model"
)

// MaxCached bounds the cache. The oldest rows are dropped first.
const MaxCached = 200

// Channel caches notifications newest first, ties broken by id descending.
// Rows from a fetch and from the stream are merged by id, so the cache is
// the same whichever arrives first.
type Channel struct {
	backend backend.Notifications
	logger  *slog.Logger

	mu      sync.Mutex
	items   []model.Notification
	sub     backend.Subscription
	subUser string
}

func New(b backend.Notifications, logger *slog.Logger) *Channel {
	return &Channel{backend: b, logger: logger}
}

// Fetch loads every row for userID into the cache. On error the cache is
// left empty.
func (c *Channel) Fetch(ctx context.Context, userID string) error {
	rows, err := c.backend.ListNotifications(ctx, userID)
	if err != nil {
		c.logger.Error("fetch notifications", "user_id", userID, "error", err)
		c.mu.Lock()
		c.items = nil
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	for _, n := range c.items {
		if n.UserID == userID {
			kept = append(kept, n)
		}
	}
	c.items = mergeRows(kept, rows)
	return nil
}

// Listen subscribes to rows inserted for userID. An existing subscription is
// torn down first. Pair every Listen with Unsubscribe or Reset.
func (c *Channel) Listen(ctx context.Context, userID string) error {
	c.Unsubscribe()

	sub, err := c.backend.SubscribeInserts(ctx, userID, func(n model.Notification) {
		if n.UserID != userID {
			return
		}
		c.mu.Lock()
		c.items = mergeRows(c.items, []model.Notification{n})
		c.mu.Unlock()
	})
	if err != nil {
		c.logger.Error("subscribe notifications", "user_id", userID, "error", err)
		return err
	}

	c.mu.Lock()
	prev := c.sub
	c.sub, c.subUser = sub, userID
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	c.logger.Debug("listening for notifications", "user_id", userID)
	return nil
}

// Listening reports the user the active subscription belongs to.
func (c *Channel) Listening() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subUser, c.sub != nil
}

func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	sub := c.sub
	c.sub, c.subUser = nil, ""
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			c.logger.Warn("close notification subscription", "error", err)
		}
	}
}

// Notifications returns a copy of the cache.
func (c *Channel) Notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Reset drops the subscription and empties the cache.
func (c *Channel) Reset() {
	c.Unsubscribe()
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

func mergeRows(cur, incoming []model.Notification) []model.Notification {
	byID := make(map[int64]int, len(cur)+len(incoming))
	out := make([]model.Notification, 0, len(cur)+len(incoming))
	for _, list := range [][]model.Notification{cur, incoming} {
		for _, n := range list {
			if i, ok := byID[n.ID]; ok {
				out[i] = n
				continue
			}
			byID[n.ID] = len(out)
			out = append(out, n)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > MaxCached {
		out = out[:MaxCached]
	}
	return out
}
