package model

import "time"

// Session is an anonymous, merchant-scoped widget conversation.
type Session struct {
	ID             string    `json:"sessionId"`
	MerchantID     string    `json:"merchantId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// IsExpired reports whether the session is past its TTL at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TTLRemaining is zero once the session has expired.
func (s *Session) TTLRemaining(now time.Time) time.Duration {
	if s.IsExpired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
