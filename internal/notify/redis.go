package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mohammadumar-dev/resumeagent/internal/observability"
)

// DefaultChannelPrefix prefixes the per-user status channel.
const DefaultChannelPrefix = "resume-status"

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Redis publishes status messages on a per-user pub/sub channel.
type Redis struct {
	log    *observability.Logger
	rdb    *goredis.Client
	prefix string
}

// NewRedis returns a Redis notifier. An empty prefix uses DefaultChannelPrefix.
func NewRedis(rdb *goredis.Client, prefix string, log *observability.Logger) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Redis{
		log:    log.With("service", "RedisNotifier"),
		rdb:    rdb,
		prefix: prefix,
	}
}

// Channel returns the pub/sub channel carrying a user's status messages.
func (n *Redis) Channel(userID uuid.UUID) string {
	return n.prefix + ":" + userID.String()
}

func (n *Redis) Notify(ctx context.Context, userID uuid.UUID, agentName string, status Status) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	raw, err := json.Marshal(Message{AgentName: agentName, Status: status})
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.Channel(userID), raw).Err()
}

// Subscribe forwards every message published for userID to onMsg until ctx is done.
func (n *Redis) Subscribe(ctx context.Context, userID uuid.UUID, onMsg func(Message)) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := n.rdb.Subscribe(ctx, n.Channel(userID))
	defer sub.Close()

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				n.log.Warn("dropping malformed status message", "channel", m.Channel, "error", err)
				continue
			}
			onMsg(msg)
		}
	}
}
