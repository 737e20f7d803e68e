package store

import (
    "context"
    "encoding/json"
    "fmt"
    "strconv"
    "strings"

    "github.com/redis/go-redis/v9"
)

const (
    statsKey   = "tictactoe:stats"
    resultsKey = "tictactoe:results"
)

// RedisStore keeps tallies in a hash and recent results in a capped list.
type RedisStore struct {
    redis  *redis.Client
    prefix string
}

// NewRedisStore wraps an existing client. prefix namespaces the keys and may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
    return &RedisStore{redis: client, prefix: prefix}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
    opts, err := redis.ParseURL(url)
    if err != nil {
        return nil, fmt.Errorf("error parsing redis url: %w", err)
    }
    client := redis.NewClient(opts)
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("error connecting to redis: %w", err)
    }
    return client, nil
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func outcomeField(winner string) string {
    switch winner {
    case "X":
        return "x"
    case "O":
        return "o"
    default:
        return "draw"
    }
}

func (r *RedisStore) Record(ctx context.Context, res Result) error {
    jsonData, err := json.Marshal(res)
    if err != nil {
        return fmt.Errorf("error marshaling result: %w", err)
    }
    field := BucketKey(res) + "|" + outcomeField(res.Winner)
    _, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
        pipe.HIncrBy(ctx, r.key(statsKey), field, 1)
        pipe.LPush(ctx, r.key(resultsKey), jsonData)
        pipe.LTrim(ctx, r.key(resultsKey), 0, RecentLimit-1)
        return nil
    })
    if err != nil {
        return fmt.Errorf("error storing result: %w", err)
    }
    return nil
}

func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
    fields, err := r.redis.HGetAll(ctx, r.key(statsKey)).Result()
    if err != nil {
        return nil, fmt.Errorf("error getting stats: %w", err)
    }
    out := make(Stats)
    for field, raw := range fields {
        bucket, kind, ok := strings.Cut(field, "|")
        if !ok {
            continue
        }
        n, err := strconv.ParseInt(raw, 10, 64)
        if err != nil {
            return nil, fmt.Errorf("error parsing stats field %s: %w", field, err)
        }
        t := out[bucket]
        switch kind {
        case "x":
            t.XWins += n
        case "o":
            t.OWins += n
        case "draw":
            t.Draws += n
        }
        out[bucket] = t
    }
    return out, nil
}

func (r *RedisStore) Recent(ctx context.Context, n int) ([]Result, error) {
    if n <= 0 {
        return nil, nil
    }
    items, err := r.redis.LRange(ctx, r.key(resultsKey), 0, int64(n-1)).Result()
    if err != nil {
        return nil, fmt.Errorf("error getting recent results: %w", err)
    }
    out := make([]Result, 0, len(items))
    for _, item := range items {
        var res Result
        if err := json.Unmarshal([]byte(item), &res); err != nil {
            return nil, fmt.Errorf("error unmarshaling result: %w", err)
        }
        out = append(out, res)
    }
    return out, nil
}
