package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// fixedWindowScript charges every key or none. ARGV holds limit and window
// in milliseconds for each key, in KEYS order. The reply is the admission
// flag followed by a count and remaining TTL in milliseconds per key.
var fixedWindowScript = redis.NewScript(`
local n = #KEYS
local counts = {}
local ttls = {}
local allowed = 1

for i = 1, n do
    local limit = tonumber(ARGV[2 * i - 1])
    local window = tonumber(ARGV[2 * i])
    local count = tonumber(redis.call('GET', KEYS[i]) or '0')
    local ttl = redis.call('PTTL', KEYS[i])
    if ttl < 0 then
        count = 0
        ttl = window
    end
    counts[i] = count
    ttls[i] = ttl
    if count >= limit then
        allowed = 0
    end
end

if allowed == 1 then
    for i = 1, n do
        if counts[i] == 0 then
            redis.call('SET', KEYS[i], 1, 'PX', ARGV[2 * i])
        else
            redis.call('INCR', KEYS[i])
        end
        counts[i] = counts[i] + 1
    end
end

local result = {allowed}
for i = 1, n do
    table.insert(result, counts[i])
    table.insert(result, ttls[i])
end
return result
`)

// RedisWindowStore shares fixed-window counters across server instances. The
// script touches several keys at once, so on Redis Cluster the keys must hash
// to one slot.
type RedisWindowStore struct {
	client redis.Scripter
}

func NewRedisWindowStore(client redis.Scripter) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Take(ctx context.Context, now time.Time, rules []WindowRule) ([]RuleStatus, bool, error) {
	keys := make([]string, len(rules))
	args := make([]interface{}, 0, 2*len(rules))
	for i, rule := range rules {
		keys[i] = rateLimitKeyPrefix + rule.Key
		args = append(args, rule.Limit, rule.Window.Milliseconds())
	}

	result, err := fixedWindowScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, false, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(result) != 1+2*len(rules) {
		return nil, false, fmt.Errorf("unexpected rate limit result length %d", len(result))
	}

	allowed := result[0] == 1
	statuses := make([]RuleStatus, len(rules))
	for i, rule := range rules {
		count := int(result[1+2*i])
		ttl := time.Duration(result[2+2*i]) * time.Millisecond
		statuses[i] = RuleStatus{
			Count:   count,
			ResetAt: now.Add(ttl),
		}
		if !allowed {
			statuses[i].Exceeded = count >= rule.Limit
		}
	}

	return statuses, allowed, nil
}
