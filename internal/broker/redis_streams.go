package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stayhub/pkg/logger"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
	})
}

// streamClient is the slice of the redis API the adapter uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// RedisStreams adapts Redis Streams to the Publisher/Subscriber contracts.
// A stream is a topic; entry IDs serve as offsets; consumer groups give
// at-least-once delivery with explicit acks.
type RedisStreams struct {
	client streamClient
	log    *logger.Logger
	// minIdle is how long an unacked entry may sit in the group's pending list
	// before any consumer takes it over.
	minIdle time.Duration
}

func NewRedisStreams(client *redis.Client, log *logger.Logger) *RedisStreams {
	return &RedisStreams{
		client:  client,
		log:     log,
		minIdle: 30 * time.Second,
	}
}

var _ Publisher = (*RedisStreams)(nil)
var _ Subscriber = (*RedisStreams)(nil)

func (s *RedisStreams) Publish(ctx context.Context, msg Message) error {
	values := map[string]interface{}{
		"key":     msg.Key,
		"payload": msg.Value,
	}
	if len(msg.Headers) > 0 {
		headers, err := json.Marshal(msg.Headers)
		if err != nil {
			return err
		}
		values["headers"] = headers
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: msg.Topic,
		Values: values,
	}).Err()
}

func (s *RedisStreams) Consume(ctx context.Context, topic, group, consumer string, fn HandlerFunc) error {
	if err := s.ensureGroup(ctx, topic, group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Entries left pending by a crashed consumer, or unacked because the
		// handler asked for redelivery, are taken over here; XReadGroup with
		// ">" would never see them again.
		s.reclaim(ctx, topic, group, consumer, fn)

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    32,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.log != nil {
				s.log.Errorf("stream read failed on %s: %s", topic, err.Error())
			}
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			s.dispatch(ctx, stream.Stream, group, stream.Messages, fn)
		}
	}
}

// reclaim sweeps the group's pending entries older than minIdle and runs them
// through the handler. Entries that fail again stay pending for a later sweep.
func (s *RedisStreams) reclaim(ctx context.Context, topic, group, consumer string, fn HandlerFunc) {
	start := "0-0"
	for {
		messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   topic,
			Group:    group,
			Consumer: consumer,
			MinIdle:  s.minIdle,
			Start:    start,
			Count:    32,
		}).Result()
		if err != nil {
			if ctx.Err() == nil && s.log != nil {
				s.log.Errorf("pending sweep failed on %s: %s", topic, err.Error())
			}
			return
		}
		s.dispatch(ctx, topic, group, messages, fn)
		if len(messages) == 0 || next == "0-0" {
			return
		}
		start = next
	}
}

func (s *RedisStreams) dispatch(ctx context.Context, stream, group string, messages []redis.XMessage, fn HandlerFunc) {
	for _, msg := range messages {
		delivery := toDelivery(stream, msg)
		if err := fn(ctx, delivery); err != nil {
			// The handler owns retries and dead-lettering; an error here
			// means it wants redelivery, so the entry stays pending until
			// the next reclaim sweep.
			if s.log != nil {
				s.log.Errorf("delivery %s on %s not acked: %s", msg.ID, stream, err.Error())
			}
			continue
		}
		if err := s.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil && s.log != nil {
			s.log.Errorf("ack failed for %s on %s: %s", msg.ID, stream, err.Error())
		}
	}
}

func (s *RedisStreams) ensureGroup(ctx context.Context, topic, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func toDelivery(stream string, msg redis.XMessage) Delivery {
	delivery := Delivery{
		Topic:  stream,
		Offset: msg.ID,
	}
	if key, ok := msg.Values["key"].(string); ok {
		delivery.Key = key
	}
	if payload, ok := msg.Values["payload"].(string); ok {
		delivery.Value = []byte(payload)
	}
	if raw, ok := msg.Values["headers"].(string); ok {
		_ = json.Unmarshal([]byte(raw), &delivery.Headers)
	}
	return delivery
}
