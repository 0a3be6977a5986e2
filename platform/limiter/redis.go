package limiter

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// admitScript charges one hit and arms the window TTL in a single atomic
// step. KEYS[1] is the counter key, ARGV[1] the window length in
// milliseconds. Returns the post-increment count and the remaining window
// in milliseconds.
//
// The PTTL < 0 branch repairs keys left without an expiry, which we have
// observed ElastiCache producing under failover.
var admitScript = redis.NewScript(1, `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type redisLimiter struct {
	prefix string
	pool   *redis.Pool
}

// Redis returns a Redis Limiter implementation.
func Redis(pool *redis.Pool, prefix string) Limiter {
	return &redisLimiter{
		prefix: prefix,
		pool:   pool,
	}
}

func (l *redisLimiter) Admit(limitee *Limitee) (Admission, error) {
	var (
		conn = l.pool.Get()
		key  = fmt.Sprintf("%s:%s", l.prefix, limitee.Hash)
	)
	defer conn.Close()

	res, err := redis.Int64s(
		admitScript.Do(conn, key, int64(limitee.WindowSize/time.Millisecond)),
	)
	if err != nil {
		return Admission{}, fmt.Errorf("limiter admit failed: %s", err)
	}

	var (
		count = res[0]
		ttl   = time.Duration(res[1]) * time.Millisecond
	)

	remaining := limitee.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Admission{
		Allowed:   count <= limitee.Limit,
		Expires:   time.Now().Add(ttl),
		Remaining: remaining,
	}, nil
}
