package service

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/util"
)

type RateLimitScope string

const (
	ScopeIP       RateLimitScope = "ip"
	ScopeMerchant RateLimitScope = "merchant"
)

// Limit is a quota of Limit requests per fixed Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// WindowRule is one counter that a request is charged against.
type WindowRule struct {
	Key    string
	Limit  int
	Window time.Duration
}

type RuleStatus struct {
	Count    int
	ResetAt  time.Time
	Exceeded bool
}

// WindowStore charges a request against every rule or against none. When any
// rule is already at its limit no counter is incremented and allowed is false.
type WindowStore interface {
	Take(ctx context.Context, now time.Time, rules []WindowRule) (statuses []RuleStatus, allowed bool, err error)
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	ResetAt    time.Time
	Scope      RateLimitScope
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 on denial.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// RateLimiter enforces independent per-IP and per-merchant fixed windows.
type RateLimiter struct {
	store    WindowStore
	ip       Limit
	merchant Limit
	now      func() time.Time
}

type RateLimiterOption func(*RateLimiter)

func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

func NewRateLimiter(store WindowStore, ip, merchant Limit, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		store:    store,
		ip:       ip,
		merchant: merchant,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func IPKey(ip string) string {
	return util.CompactKey("ip:" + ip)
}

func MerchantKey(merchantID string) string {
	return util.CompactKey("merchant:" + merchantID)
}

// Allow charges one request to the ip and merchant windows. An empty
// merchantID is charged to the ip window only.
func (rl *RateLimiter) Allow(ctx context.Context, ip, merchantID string) Decision {
	rules := []WindowRule{{Key: IPKey(ip), Limit: rl.ip.Limit, Window: rl.ip.Window}}
	scopes := []RateLimitScope{ScopeIP}
	if merchantID != "" {
		rules = append(rules, WindowRule{Key: MerchantKey(merchantID), Limit: rl.merchant.Limit, Window: rl.merchant.Window})
		scopes = append(scopes, ScopeMerchant)
	}

	now := rl.now()
	statuses, allowed, err := rl.store.Take(ctx, now, rules)
	if err != nil || len(statuses) != len(rules) {
		log.Warn().
			Err(err).
			Str("ip", ip).
			Str("merchantId", merchantID).
			Msg("rate limit check failed, denying request for safety")
		return Decision{
			Allowed:    false,
			RetryAfter: rl.ip.Window,
			Limit:      rl.ip.Limit,
			ResetAt:    now.Add(rl.ip.Window),
			Scope:      ScopeIP,
		}
	}

	if !allowed {
		return deniedDecision(now, rules, scopes, statuses)
	}
	return allowedDecision(rules, scopes, statuses)
}

// deniedDecision reports the exceeded window that resets last, since the
// request cannot pass before every exceeded window has reset.
func deniedDecision(now time.Time, rules []WindowRule, scopes []RateLimitScope, statuses []RuleStatus) Decision {
	d := Decision{Allowed: false}
	found := false
	for i, status := range statuses {
		if !status.Exceeded {
			continue
		}
		if !found || status.ResetAt.After(d.ResetAt) {
			d.ResetAt = status.ResetAt
			d.Limit = rules[i].Limit
			d.Scope = scopes[i]
			found = true
		}
	}
	if !found {
		d.ResetAt = statuses[0].ResetAt
		d.Limit = rules[0].Limit
		d.Scope = scopes[0]
	}

	d.RetryAfter = d.ResetAt.Sub(now)
	if d.RetryAfter < time.Second {
		d.RetryAfter = time.Second
	}
	return d
}

func allowedDecision(rules []WindowRule, scopes []RateLimitScope, statuses []RuleStatus) Decision {
	d := Decision{Allowed: true, Remaining: math.MaxInt}
	for i, status := range statuses {
		remaining := rules[i].Limit - status.Count
		if remaining < 0 {
			remaining = 0
		}
		if remaining < d.Remaining {
			d.Remaining = remaining
			d.Limit = rules[i].Limit
			d.ResetAt = status.ResetAt
			d.Scope = scopes[i]
		}
	}
	return d
}
