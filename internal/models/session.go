package models

import "time"

// SessionMetadata governs validity of a thread. An expired session is read
// back as empty state.
type SessionMetadata struct {
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func (s *SessionMetadata) IsExpired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}

// Touch records an access and pushes expiry out by ttl.
func (s *SessionMetadata) Touch(now time.Time, ttl time.Duration) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastAccessedAt = now
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
}
