package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockroom/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

// keyPrefix namespaces limiter keys. The caller key sits in a hash tag so
// all tiers of one caller land in the same cluster slot.
const keyPrefix = "stockroom:rl:"

// hitScript checks every tier and records the hit in all of them only when
// each has room. KEYS are the per-tier sorted sets. ARGV[1] is the hit
// score (unix ms), ARGV[2] a unique member, then per tier: cutoff score,
// limit, window in ms.
var hitScript = goredis.NewScript(`
local now = ARGV[1]
local member = ARGV[2]
local counts = {}
for i = 1, #KEYS do
	local base = 2 + (i - 1) * 3
	redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', ARGV[base + 1])
	local count = redis.call('ZCARD', KEYS[i])
	if count >= tonumber(ARGV[base + 2]) then
		return {0, i - 1}
	end
	counts[i] = count
end
local out = {1, -1}
for i = 1, #KEYS do
	local base = 2 + (i - 1) * 3
	redis.call('ZADD', KEYS[i], now, member)
	redis.call('PEXPIRE', KEYS[i], ARGV[base + 3])
	out[#out + 1] = counts[i] + 1
end
return out
`)

// CounterStore is a ratelimit.CounterStore over Redis sorted sets. Each
// Hit runs as a single Lua script, so concurrent requests for one caller
// cannot undercount.
type CounterStore struct {
	client goredis.Scripter
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates a CounterStore using client.
func NewCounterStore(client goredis.Scripter) *CounterStore {
	return &CounterStore{client: client}
}

// Connect parses url, dials Redis and verifies the connection.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Hit implements ratelimit.CounterStore.
func (s *CounterStore) Hit(ctx context.Context, key string, tiers []ratelimit.Tier, now time.Time) (ratelimit.Result, error) {
	nowMs := now.UnixMilli()
	keys := make([]string, len(tiers))
	args := make([]any, 0, 2+3*len(tiers))
	args = append(args, strconv.FormatInt(nowMs, 10), uuid.NewString())

	for i, t := range tiers {
		keys[i] = tierKey(key, t.Name)
		windowMs := t.Window.Milliseconds()
		args = append(args,
			strconv.FormatInt(nowMs-windowMs, 10),
			t.Limit,
			windowMs,
		)
	}

	reply, err := hitScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("redis sliding window: %w", err)
	}
	return parseReply(reply, len(tiers))
}

func parseReply(reply []int64, tiers int) (ratelimit.Result, error) {
	if len(reply) < 2 {
		return ratelimit.Result{}, fmt.Errorf("redis sliding window: short reply %v", reply)
	}
	if reply[0] == 0 {
		return ratelimit.Result{Breached: int(reply[1])}, nil
	}
	if len(reply) != 2+tiers {
		return ratelimit.Result{}, fmt.Errorf("redis sliding window: expected %d counts, got %d", tiers, len(reply)-2)
	}
	counts := make([]int, tiers)
	for i := range counts {
		counts[i] = int(reply[2+i])
	}
	return ratelimit.Result{Allowed: true, Breached: -1, Counts: counts}, nil
}

func tierKey(callerKey, tier string) string {
	return keyPrefix + "{" + callerKey + "}:" + tier
}
