package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/domain"
)

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Ping(ctx context.Context) error {
	if err := ps.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Ping: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// NotificationEvent is the payload published for every committed notification.
type NotificationEvent struct {
	HouseID     int64     `json:"house_id"`
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RelatedType *string   `json:"related_type,omitempty"`
	RelatedID   *int64    `json:"related_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EncodeNotification builds the published payload for n.
func EncodeNotification(houseID int64, n *domain.Notification) ([]byte, error) {
	return json.Marshal(NotificationEvent{
		HouseID:     houseID,
		ID:          n.ID,
		UserID:      n.UserID,
		Title:       n.Title,
		Message:     n.Message,
		RelatedType: n.RelatedType,
		RelatedID:   n.RelatedID,
		CreatedAt:   n.CreatedAt,
	})
}

// NotificationsCreated publishes each notification on its user's channel.
// It attempts every notification and returns the first error.
func (ps *PubSub) NotificationsCreated(ctx context.Context, houseID int64, notes []*domain.Notification) error {
	var firstErr error
	for _, n := range notes {
		payload, err := EncodeNotification(houseID, n)
		if err == nil {
			err = ps.Publish(ctx, NotificationChannel(houseID, n.UserID), payload)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("redis.PubSub.NotificationsCreated: %w", err)
		}
	}
	return firstErr
}

// NotificationChannel returns the Redis channel name for a user's notifications
// within a house.
func NotificationChannel(houseID, userID int64) string {
	return "house:" + strconv.FormatInt(houseID, 10) + ":user:" + strconv.FormatInt(userID, 10) + ":notifications"
}

// releaseScript deletes a lock only if it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes a best-effort lock on key for ttl. A key already held yields
// domain.ErrLocked. The returned release func drops the lock if this caller
// still owns it.
func (ps *PubSub) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	token := uuid.NewString()

	ok, err := ps.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.PubSub.Acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis.PubSub.Acquire(%q): %w", key, domain.ErrLocked)
	}

	release := func(ctx context.Context) {
		err := releaseScript.Run(ctx, ps.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("redis: releasing lock")
		}
	}
	return release, nil
}
