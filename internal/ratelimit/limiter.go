// Package ratelimit throttles chat operations with fixed windows kept in
// Redis. Logins are counted per client IP and sends per room name; each
// operation carries its own limit and window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Op names a throttled chat operation. It is also the middle segment of the
// counter key, rl:<op>:<identifier>.
type Op string

const (
	OpLogin Op = "login"
	OpSend  Op = "send"
)

// Rule is the allowance for one operation: at most Limit calls per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules are used for any operation the caller leaves out.
var DefaultRules = map[Op]Rule{
	OpLogin: {Limit: 10, Window: time.Minute},
	OpSend:  {Limit: 5, Window: 10 * time.Second},
}

// windowScript counts one hit and starts the window on the first hit, in a
// single round trip, so a counter can never be left without a TTL.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Limiter checks chat operations against their rules.
type Limiter struct {
	client redis.Scripter
	rules  map[Op]Rule
}

// NewLimiter returns a Limiter using rules, falling back to DefaultRules for
// operations rules does not mention.
func NewLimiter(client redis.Scripter, rules map[Op]Rule) *Limiter {
	merged := make(map[Op]Rule, len(DefaultRules))
	for op, r := range DefaultRules {
		merged[op] = r
	}
	for op, r := range rules {
		if r.Limit > 0 && r.Window > 0 {
			merged[op] = r
		}
	}
	return &Limiter{client: client, rules: merged}
}

// Rule returns the rule applied to op.
func (l *Limiter) Rule(op Op) (Rule, bool) {
	r, ok := l.rules[op]
	return r, ok
}

// Allow counts one op by identifier and reports whether it is within the
// rule. Operations without a rule are always allowed. A Redis failure allows
// the call and returns the error, so an outage never locks users out.
func (l *Limiter) Allow(ctx context.Context, op Op, identifier string) (bool, error) {
	rule, ok := l.rules[op]
	if !ok {
		return true, nil
	}

	key := Key(op, identifier)
	count, err := windowScript.Run(ctx, l.client, []string{key}, rule.Window.Milliseconds()).Int64()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing")
		return true, fmt.Errorf("ratelimit: %s: %w", op, err)
	}
	return count <= int64(rule.Limit), nil
}

// Key is the Redis counter key for op and identifier.
func Key(op Op, identifier string) string {
	return "rl:" + string(op) + ":" + identifier
}
