package redisx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Streams is the subset of the go-redis client used here.
type Streams interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

// XAddJSON appends v as the "data" field of a new entry. maxLen > 0 trims the
// stream approximately to that many entries.
func XAddJSON(ctx context.Context, rdb Streams, stream string, maxLen int64, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{"data": string(b)},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return rdb.XAdd(ctx, args).Result()
}

type DecodedMessage struct {
	Stream  string
	ID      string
	Payload map[string]any
	Raw     redis.XMessage
}

// XRevRangeJSON returns up to count entries, newest first, with their "data"
// field decoded. Entries without valid JSON keep a nil Payload.
func XRevRangeJSON(ctx context.Context, rdb Streams, stream string, count int64) ([]DecodedMessage, error) {
	msgs, err := rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]DecodedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, decode(stream, m))
	}
	return out, nil
}

func decode(stream string, m redis.XMessage) DecodedMessage {
	var item map[string]any
	if raw, ok := m.Values["data"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &item)
	}
	return DecodedMessage{Stream: stream, ID: m.ID, Payload: item, Raw: m}
}
